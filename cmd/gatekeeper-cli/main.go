package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agentverse/gatekeeper/internal/version"
)

var (
	cfgFile   string
	apiURL    string
	apiToken  string
	verbose   bool
	outputFmt string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gatekeeper-cli",
	Short: "Gatekeeper CLI - group, agent and permission management tool",
	Long: `Gatekeeper CLI provides command-line access to the Gatekeeper access
control service. Manage groups, memberships and agents, run permission
checks, and monitor system health from the terminal.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initConfig()
		if verbose {
			fmt.Printf("API URL: %s\n", apiURL)
		}
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.gatekeeper-cli.yaml)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "Gatekeeper API base URL")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", "", "API authentication token")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "output format (table, json)")

	viper.BindPFlag("api_url", rootCmd.PersistentFlags().Lookup("api-url"))
	viper.BindPFlag("api_token", rootCmd.PersistentFlags().Lookup("token"))

	rootCmd.AddCommand(groupCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(adminCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".gatekeeper-cli")
	}

	viper.SetEnvPrefix("GATEKEEPER")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Printf("Using config file: %s\n", viper.ConfigFileUsed())
	}

	if apiURL == "" {
		apiURL = viper.GetString("api_url")
	}
	if apiToken == "" {
		apiToken = viper.GetString("api_token")
	}

	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}
}

func newClient() *GatekeeperClient {
	return &GatekeeperClient{BaseURL: apiURL, Token: apiToken}
}

func logVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Printf(format+"\n", args...)
	}
}

// Group management commands
var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Group management commands",
	Long:  "Create, list, inspect and delete groups and their members",
}

var groupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List groups visible to the caller",
	RunE: func(cmd *cobra.Command, args []string) error {
		return newClient().ListGroups()
	},
}

var groupCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a new group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		return newClient().CreateGroup(args[0], description)
	},
}

var groupGetCmd = &cobra.Command{
	Use:   "get [group-id]",
	Short: "Get group details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return newClient().GetGroup(args[0])
	},
}

var groupDeleteCmd = &cobra.Command{
	Use:   "delete [group-id]",
	Short: "Delete a group",
	Long:  "Delete a group, its memberships and its agent assignments (WARNING: This is irreversible)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Are you sure you want to delete group '%s'? This action cannot be undone.\n", args[0])
		fmt.Print("Type 'yes' to confirm: ")
		var confirmation string
		fmt.Scanln(&confirmation)

		if confirmation != "yes" {
			fmt.Println("Operation cancelled.")
			return nil
		}

		return newClient().DeleteGroup(args[0])
	},
}

var groupMembersCmd = &cobra.Command{
	Use:   "members [group-id]",
	Short: "List members of a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return newClient().ListMembers(args[0])
	},
}

var groupAddMemberCmd = &cobra.Command{
	Use:   "add-member [group-id] [subject-id]",
	Short: "Add a member to a group",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, _ := cmd.Flags().GetString("role")
		return newClient().AddMember(args[0], args[1], role)
	},
}

var groupRemoveMemberCmd = &cobra.Command{
	Use:   "remove-member [group-id] [subject-id]",
	Short: "Remove a member from a group",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return newClient().RemoveMember(args[0], args[1])
	},
}

func init() {
	groupCreateCmd.Flags().String("description", "", "group description")
	groupAddMemberCmd.Flags().String("role", "user", "membership role (admin or user)")

	groupCmd.AddCommand(groupListCmd)
	groupCmd.AddCommand(groupCreateCmd)
	groupCmd.AddCommand(groupGetCmd)
	groupCmd.AddCommand(groupDeleteCmd)
	groupCmd.AddCommand(groupMembersCmd)
	groupCmd.AddCommand(groupAddMemberCmd)
	groupCmd.AddCommand(groupRemoveMemberCmd)
}

// Agent management commands
var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Agent management commands",
	Long:  "Register agents, manage group assignments and inspect visibility",
}

var agentRegisterCmd = &cobra.Command{
	Use:   "register [external-id] [name]",
	Short: "Register a new agent into a group",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		groupID, _ := cmd.Flags().GetString("group")
		if groupID == "" {
			return fmt.Errorf("--group is required")
		}
		return newClient().RegisterAgent(args[0], args[1], groupID)
	},
}

var agentListCmd = &cobra.Command{
	Use:   "list [group-id]",
	Short: "List agents assigned to a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return newClient().ListGroupAgents(args[0])
	},
}

var agentUserCmd = &cobra.Command{
	Use:   "user [subject-id]",
	Short: "List agents visible to a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return newClient().ListUserAgents(args[0])
	},
}

func init() {
	agentRegisterCmd.Flags().String("group", "", "owning group UUID")

	agentCmd.AddCommand(agentRegisterCmd)
	agentCmd.AddCommand(agentListCmd)
	agentCmd.AddCommand(agentUserCmd)
}

// Permission check command
var checkCmd = &cobra.Command{
	Use:   "check [agent-id]",
	Short: "Check whether the caller may act on an agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		action, _ := cmd.Flags().GetString("action")
		return newClient().CheckPermission(args[0], action)
	},
}

func init() {
	checkCmd.Flags().String("action", "access", "action to check (access or create)")
}

// Admin commands (superadmin token required)
var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Superadmin commands",
	Long:  "System-wide views and bulk operations; requires a superadmin token",
}

var adminAgentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List every agent with its assignments",
	RunE: func(cmd *cobra.Command, args []string) error {
		return newClient().AdminListAgents()
	},
}

var adminGroupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List every group with member counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return newClient().AdminListGroups()
	},
}

var adminSetGroupsCmd = &cobra.Command{
	Use:   "set-groups [agent-id] [group-id]...",
	Short: "Replace an agent's group assignments",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return newClient().AdminSetAgentGroups(args[0], args[1:])
	},
}

func init() {
	adminCmd.AddCommand(adminAgentsCmd)
	adminCmd.AddCommand(adminGroupsCmd)
	adminCmd.AddCommand(adminSetGroupsCmd)
}

// Health command
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check API health",
	RunE: func(cmd *cobra.Command, args []string) error {
		return newClient().Health()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.String())
	},
}
