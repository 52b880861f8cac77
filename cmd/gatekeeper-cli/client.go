package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// API response structures
type GroupResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	MemberCount int       `json:"member_count,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type MemberResponse struct {
	SubjectID   string    `json:"subject_id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

type AgentResponse struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"external_id"`
	Name       string    `json:"name"`
	CreatedBy  string    `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
	Groups     []struct {
		GroupID   string `json:"group_id"`
		GroupName string `json:"group_name"`
	} `json:"groups,omitempty"`
}

type DecisionResponse struct {
	Allowed bool    `json:"allowed"`
	Role    *string `json:"role"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	DB      string `json:"db"`
	Cache   string `json:"cache"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// GatekeeperClient talks to the Gatekeeper API.
type GatekeeperClient struct {
	BaseURL string
	Token   string
}

func (c *GatekeeperClient) makeRequest(method, path string, body interface{}) (*http.Response, error) {
	var reqBody io.Reader

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	url := c.BaseURL + path
	logVerbose("Making %s request to %s", method, url)

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	logVerbose("Response status: %s", resp.Status)
	return resp, nil
}

func (c *GatekeeperClient) handleResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp ErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
			return fmt.Errorf("API error (%d): %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("API error (%d): %s", resp.StatusCode, string(body))
	}

	if target != nil {
		if err := json.Unmarshal(body, target); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}

// Group management methods
func (c *GatekeeperClient) ListGroups() error {
	resp, err := c.makeRequest("GET", "/api/v1/groups", nil)
	if err != nil {
		return err
	}
	var out struct {
		Groups []GroupResponse `json:"groups"`
	}
	if err := c.handleResponse(resp, &out); err != nil {
		return err
	}
	return printOutput(out.Groups, func() {
		fmt.Printf("%-36s  %-24s  %s\n", "ID", "NAME", "DESCRIPTION")
		for _, g := range out.Groups {
			fmt.Printf("%-36s  %-24s  %s\n", g.ID, g.Name, g.Description)
		}
	})
}

func (c *GatekeeperClient) CreateGroup(name, description string) error {
	payload := map[string]interface{}{"name": name}
	if description != "" {
		payload["description"] = description
	}
	resp, err := c.makeRequest("POST", "/api/v1/groups", payload)
	if err != nil {
		return err
	}
	var g GroupResponse
	if err := c.handleResponse(resp, &g); err != nil {
		return err
	}
	return printOutput(g, func() {
		fmt.Printf("Created group %s (%s)\n", g.Name, g.ID)
	})
}

func (c *GatekeeperClient) GetGroup(id string) error {
	resp, err := c.makeRequest("GET", "/api/v1/groups/"+id, nil)
	if err != nil {
		return err
	}
	var g GroupResponse
	if err := c.handleResponse(resp, &g); err != nil {
		return err
	}
	return printOutput(g, func() {
		fmt.Printf("ID:          %s\n", g.ID)
		fmt.Printf("Name:        %s\n", g.Name)
		fmt.Printf("Description: %s\n", g.Description)
		fmt.Printf("Created:     %s\n", g.CreatedAt.Format(time.RFC3339))
	})
}

func (c *GatekeeperClient) DeleteGroup(id string) error {
	resp, err := c.makeRequest("DELETE", "/api/v1/groups/"+id, nil)
	if err != nil {
		return err
	}
	if err := c.handleResponse(resp, nil); err != nil {
		return err
	}
	fmt.Printf("Deleted group %s\n", id)
	return nil
}

func (c *GatekeeperClient) ListMembers(groupID string) error {
	resp, err := c.makeRequest("GET", "/api/v1/groups/"+groupID+"/members", nil)
	if err != nil {
		return err
	}
	var out struct {
		Members []MemberResponse `json:"members"`
	}
	if err := c.handleResponse(resp, &out); err != nil {
		return err
	}
	return printOutput(out.Members, func() {
		fmt.Printf("%-32s  %-8s  %-24s  %s\n", "SUBJECT", "ROLE", "NAME", "EMAIL")
		for _, m := range out.Members {
			fmt.Printf("%-32s  %-8s  %-24s  %s\n", m.SubjectID, m.Role, m.DisplayName, m.Email)
		}
	})
}

func (c *GatekeeperClient) AddMember(groupID, subjectID, role string) error {
	payload := map[string]interface{}{"subject_id": subjectID, "role": role}
	resp, err := c.makeRequest("POST", "/api/v1/groups/"+groupID+"/members", payload)
	if err != nil {
		return err
	}
	var m MemberResponse
	if err := c.handleResponse(resp, &m); err != nil {
		return err
	}
	return printOutput(m, func() {
		fmt.Printf("Added %s to group %s as %s\n", m.SubjectID, groupID, m.Role)
	})
}

func (c *GatekeeperClient) RemoveMember(groupID, subjectID string) error {
	resp, err := c.makeRequest("DELETE", "/api/v1/groups/"+groupID+"/members/"+subjectID, nil)
	if err != nil {
		return err
	}
	if err := c.handleResponse(resp, nil); err != nil {
		return err
	}
	fmt.Printf("Removed %s from group %s\n", subjectID, groupID)
	return nil
}

// Agent management methods
func (c *GatekeeperClient) RegisterAgent(externalID, name, groupID string) error {
	payload := map[string]interface{}{
		"external_id": externalID,
		"name":        name,
		"group_id":    groupID,
	}
	resp, err := c.makeRequest("POST", "/api/v1/agents", payload)
	if err != nil {
		return err
	}
	var a AgentResponse
	if err := c.handleResponse(resp, &a); err != nil {
		return err
	}
	return printOutput(a, func() {
		fmt.Printf("Registered agent %s (%s)\n", a.Name, a.ID)
	})
}

func (c *GatekeeperClient) ListGroupAgents(groupID string) error {
	resp, err := c.makeRequest("GET", "/api/v1/groups/"+groupID+"/agents", nil)
	if err != nil {
		return err
	}
	var out struct {
		Agents []AgentResponse `json:"agents"`
	}
	if err := c.handleResponse(resp, &out); err != nil {
		return err
	}
	return printOutput(out.Agents, func() {
		printAgentTable(out.Agents)
	})
}

func (c *GatekeeperClient) ListUserAgents(subjectID string) error {
	resp, err := c.makeRequest("GET", "/api/v1/users/"+subjectID+"/agents", nil)
	if err != nil {
		return err
	}
	var out struct {
		Agents []AgentResponse `json:"agents"`
	}
	if err := c.handleResponse(resp, &out); err != nil {
		return err
	}
	return printOutput(out.Agents, func() {
		printAgentTable(out.Agents)
	})
}

func (c *GatekeeperClient) CheckPermission(agentID, action string) error {
	path := fmt.Sprintf("/api/v1/permissions/check?agent_id=%s&action=%s", agentID, action)
	resp, err := c.makeRequest("GET", path, nil)
	if err != nil {
		return err
	}
	var d DecisionResponse
	if err := c.handleResponse(resp, &d); err != nil {
		return err
	}
	return printOutput(d, func() {
		if d.Allowed {
			role := ""
			if d.Role != nil {
				role = " (role: " + *d.Role + ")"
			}
			fmt.Printf("ALLOWED%s\n", role)
		} else {
			fmt.Println("DENIED")
		}
	})
}

// Admin methods
func (c *GatekeeperClient) AdminListAgents() error {
	resp, err := c.makeRequest("GET", "/api/v1/admin/agents", nil)
	if err != nil {
		return err
	}
	var out struct {
		Agents []AgentResponse `json:"agents"`
	}
	if err := c.handleResponse(resp, &out); err != nil {
		return err
	}
	return printOutput(out.Agents, func() {
		printAgentTable(out.Agents)
	})
}

func (c *GatekeeperClient) AdminListGroups() error {
	resp, err := c.makeRequest("GET", "/api/v1/admin/groups", nil)
	if err != nil {
		return err
	}
	var out struct {
		Groups []GroupResponse `json:"groups"`
	}
	if err := c.handleResponse(resp, &out); err != nil {
		return err
	}
	return printOutput(out.Groups, func() {
		fmt.Printf("%-36s  %-24s  %s\n", "ID", "NAME", "MEMBERS")
		for _, g := range out.Groups {
			fmt.Printf("%-36s  %-24s  %d\n", g.ID, g.Name, g.MemberCount)
		}
	})
}

func (c *GatekeeperClient) AdminSetAgentGroups(agentID string, groupIDs []string) error {
	payload := map[string]interface{}{"group_ids": groupIDs}
	resp, err := c.makeRequest("PUT", "/api/v1/admin/agents/"+agentID+"/groups", payload)
	if err != nil {
		return err
	}
	var a AgentResponse
	if err := c.handleResponse(resp, &a); err != nil {
		return err
	}
	return printOutput(a, func() {
		names := make([]string, 0, len(a.Groups))
		for _, g := range a.Groups {
			names = append(names, g.GroupName)
		}
		fmt.Printf("Agent %s now in groups: %s\n", a.Name, strings.Join(names, ", "))
	})
}

func (c *GatekeeperClient) Health() error {
	resp, err := c.makeRequest("GET", "/healthz", nil)
	if err != nil {
		return err
	}
	var h HealthResponse
	if err := c.handleResponse(resp, &h); err != nil {
		return err
	}
	return printOutput(h, func() {
		fmt.Printf("Status:  %s\nVersion: %s\nDB:      %s\nCache:   %s\n", h.Status, h.Version, h.DB, h.Cache)
	})
}

func printAgentTable(agents []AgentResponse) {
	fmt.Printf("%-36s  %-24s  %-24s  %s\n", "ID", "NAME", "EXTERNAL ID", "GROUPS")
	for _, a := range agents {
		names := make([]string, 0, len(a.Groups))
		for _, g := range a.Groups {
			names = append(names, g.GroupName)
		}
		fmt.Printf("%-36s  %-24s  %-24s  %s\n", a.ID, a.Name, a.ExternalID, strings.Join(names, ","))
	}
}

// printOutput renders according to the global --output flag.
func printOutput(v interface{}, table func()) error {
	switch outputFmt {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		table()
		return nil
	}
}
