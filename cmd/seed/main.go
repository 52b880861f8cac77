package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	agentsrepo "github.com/agentverse/gatekeeper/internal/agents/repository"
	agentssvc "github.com/agentverse/gatekeeper/internal/agents/service"
	"github.com/agentverse/gatekeeper/internal/config"
	groupsdomain "github.com/agentverse/gatekeeper/internal/groups/domain"
	groupsrepo "github.com/agentverse/gatekeeper/internal/groups/repository"
	groupssvc "github.com/agentverse/gatekeeper/internal/groups/service"
	usersrepo "github.com/agentverse/gatekeeper/internal/users/repository"
	userssvc "github.com/agentverse/gatekeeper/internal/users/service"
)

func main() {
	_ = godotenv.Load()
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fatalf("load config: %v", err)
	}
	pgCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		fatalf("invalid DATABASE_URL: %v", err)
	}
	pgPool, err := pgxpool.NewWithConfig(ctx, pgCfg)
	if err != nil {
		fatalf("pg pool: %v", err)
	}
	defer pgPool.Close()

	uRepo := usersrepo.New(pgPool)
	uSvc := userssvc.New(uRepo)
	gRepo := groupsrepo.New(pgPool)
	gSvc := groupssvc.New(gRepo)
	mSvc := groupssvc.NewMembership(gRepo, uRepo)
	aRepo := agentsrepo.New(pgPool)
	aSvc := agentssvc.New(aRepo, gRepo, uRepo)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	switch os.Args[1] {
	case "group":
		fs := flag.NewFlagSet("group", flag.ExitOnError)
		name := fs.String("name", envOr("GROUP_NAME", "default"), "group name")
		desc := fs.String("description", os.Getenv("GROUP_DESCRIPTION"), "group description")
		_ = fs.Parse(os.Args[2:])
		g, err := gSvc.Create(ctx, *name, desc)
		if err != nil {
			fatalf("group create: %v", err)
		}
		printEnv(map[string]string{"GROUP_ID": g.ID.String()})
	case "member":
		fs := flag.NewFlagSet("member", flag.ExitOnError)
		groupIDStr := fs.String("group-id", os.Getenv("GROUP_ID"), "group UUID")
		subjectID := fs.String("subject-id", os.Getenv("SUBJECT_ID"), "user subject id")
		name := fs.String("name", envOr("DISPLAY_NAME", "Seed User"), "display name")
		email := fs.String("email", os.Getenv("EMAIL"), "email")
		roleStr := fs.String("role", envOr("ROLE", "user"), "role (admin or user)")
		_ = fs.Parse(os.Args[2:])
		groupID, err := uuid.Parse(*groupIDStr)
		if err != nil {
			fatalf("invalid group id: %v", err)
		}
		if strings.TrimSpace(*subjectID) == "" {
			fatalf("subject id is required")
		}
		role := groupsdomain.Role(*roleStr)
		if !role.Valid() {
			fatalf("invalid role %q", *roleStr)
		}
		if err := uSvc.Upsert(ctx, *subjectID, *name, *email); err != nil {
			fatalf("user upsert: %v", err)
		}
		m, err := mSvc.AddMember(ctx, groupID, *subjectID, role)
		if err != nil && !errors.Is(err, groupsdomain.ErrDuplicateMembership) {
			fatalf("add member: %v", err)
		}
		if err == nil {
			printEnv(map[string]string{"SUBJECT_ID": m.SubjectID, "MEMBER_ROLE": string(m.Role)})
		}
	case "agent":
		fs := flag.NewFlagSet("agent", flag.ExitOnError)
		groupIDStr := fs.String("group-id", os.Getenv("GROUP_ID"), "group UUID")
		externalID := fs.String("external-id", os.Getenv("AGENT_EXTERNAL_ID"), "agent external id")
		name := fs.String("name", envOr("AGENT_NAME", "Seed Agent"), "agent name")
		createdBy := fs.String("created-by", envOr("SUBJECT_ID", "seed"), "creator subject id")
		_ = fs.Parse(os.Args[2:])
		groupID, err := uuid.Parse(*groupIDStr)
		if err != nil {
			fatalf("invalid group id: %v", err)
		}
		if strings.TrimSpace(*externalID) == "" {
			fatalf("agent external id is required")
		}
		a, err := aSvc.Register(ctx, *externalID, *name, groupID, *createdBy)
		if err != nil {
			fatalf("agent register: %v", err)
		}
		printEnv(map[string]string{"AGENT_ID": a.ID.String()})
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  seed group  [--name NAME] [--description DESC]
  seed member --group-id ID --subject-id SUB [--name NAME] [--email EMAIL] [--role admin|user]
  seed agent  --group-id ID --external-id EXT [--name NAME] [--created-by SUB]`)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func printEnv(kv map[string]string) {
	for k, v := range kv {
		fmt.Printf("%s=%s\n", k, v)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
