// Command escalation_check places (or previews) an operator escalation call
// using the telephony settings from the engine config.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/config"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/escalation"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/logging"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/settings"
)

func main() {
	configPath := flag.String("config", "", "path to config yaml (optional)")
	owner := flag.String("owner", "Test Caller", "")
	personaName := flag.String("persona", "Aria", "")
	utterance := flag.String("say", "This is a test escalation.", "")
	reason := flag.String("reason", "manual check", "")
	dryRun := flag.Bool("dry-run", false, "print the operator summary without dialing")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Println("config error:", err)
		os.Exit(1)
	}
	snap, err := cfg.Snapshot()
	if err != nil {
		fmt.Println("settings error:", err)
		os.Exit(1)
	}
	req := escalation.Request{
		SessionID:     "escalation-check",
		OwnerName:     *owner,
		PersonaName:   *personaName,
		LastUtterance: *utterance,
		Reason:        *reason,
	}

	if *dryRun {
		fmt.Println(escalation.Summary(req))
		if missing := snap.Telephony.Missing(); len(missing) > 0 {
			fmt.Println("telephony incomplete, missing:", strings.Join(missing, ", "))
		}
		return
	}

	store, err := settings.NewStore(snap)
	if err != nil {
		fmt.Println("settings error:", err)
		os.Exit(1)
	}
	logger, closer := logging.InitLogger(cfg.Log)
	defer closer.Close()

	router := escalation.NewRouter(store, logger, escalation.WithTimeout(cfg.Escalation.Timeout))
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Escalation.Timeout+5*time.Second)
	defer cancel()
	res := router.Escalate(ctx, req)
	out, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(out))
	if res.Outcome != escalation.OutcomeCallPlaced {
		os.Exit(2)
	}
}
