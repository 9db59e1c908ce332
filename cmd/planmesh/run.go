package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"gorm.io/driver/sqlite"

	"github.com/planmesh/planmesh"
	"github.com/planmesh/planmesh/config"
	"github.com/planmesh/planmesh/core"
	"github.com/planmesh/planmesh/engine"
	"github.com/planmesh/planmesh/logging"
	"github.com/planmesh/planmesh/store/gormstore"
)

// eventSpec is the YAML shape accepted by `planmesh run --event`.
type eventSpec struct {
	Title         string            `yaml:"title"`
	Type          string            `yaml:"type"`
	Organizer     string            `yaml:"organizer"`
	VenueRequired *bool             `yaml:"venue_required"`
	Participants  []participantSpec `yaml:"participants"`
}

type participantSpec struct {
	UserID string     `yaml:"user_id"`
	Status string     `yaml:"status"`
	Slots  []slotSpec `yaml:"slots"`
}

type slotSpec struct {
	Start      time.Time `yaml:"start"`
	End        time.Time `yaml:"end"`
	Preference int       `yaml:"preference"`
}

func newRunCmd() *cobra.Command {
	var (
		configPath string
		eventPath  string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Plan an event end to end",
		Long:  "Loads an event definition, seeds its participants and drives the coordination pipeline through announcement.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, configPath, eventPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to planmesh config file (defaults apply if omitted)")
	cmd.Flags().StringVarP(&eventPath, "event", "e", "event.yaml", "path to the event definition file")
	return cmd
}

func newCheckCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(configPath); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "config ok")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "planmesh.yaml", "path to planmesh config file")
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func logLevel(name string) logging.LogLevel {
	switch name {
	case "debug":
		return logging.LogLevelDebug
	case "warn":
		return logging.LogLevelWarn
	case "error":
		return logging.LogLevelError
	default:
		return logging.LogLevelInfo
	}
}

func loadEventSpec(path string) (*eventSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read event definition: %w", err)
	}
	var spec eventSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse event definition: %w", err)
	}
	if spec.Title == "" || spec.Organizer == "" {
		return nil, fmt.Errorf("event definition needs title and organizer")
	}
	switch core.EventType(spec.Type) {
	case core.EventDining, core.EventStudy, core.EventMeeting:
	default:
		return nil, fmt.Errorf("event type %q is not valid", spec.Type)
	}
	return &spec, nil
}

func runRun(cmd *cobra.Command, configPath, eventPath string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	spec, err := loadEventSpec(eventPath)
	if err != nil {
		return err
	}

	logger := logging.NewSlogLogger(logLevel(cfg.Log.Level), cfg.Log.Format, false)
	out := cmd.OutOrStdout()

	optFns := []func(o *planmesh.Options){
		func(o *planmesh.Options) {
			o.Logger = logger
			o.AutomationLevel = core.AutomationFullAuto
			o.SourceExclusions = cfg.SourceExclusions()
			o.SessionTTL = time.Duration(cfg.SessionTTLHours) * time.Hour
			o.BudgetPerPerson = cfg.Search.BudgetPerPerson
			o.Hooks = engine.Hooks{
				OnPhaseTransition: func(sessionID string, from, to core.Phase) {
					fmt.Fprintf(out, "phase: %s -> %s\n", from, to)
				},
				OnAgentCompleted: func(sessionID, agent string, result map[string]any) {
					fmt.Fprintf(out, "done:  %s\n", agent)
				},
				OnManualIntervention: func(sessionID, agent, reference string) {
					fmt.Fprintf(out, "stuck: %s (%s)\n", agent, reference)
				},
			}
		},
	}
	if cfg.Database.Path != "" {
		docs, err := gormstore.Open(sqlite.Open(cfg.Database.Path))
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		optFns = append(optFns, func(o *planmesh.Options) { o.DocumentStore = docs })
	}

	m, err := planmesh.New(ctx, optFns...)
	if err != nil {
		return err
	}
	defer m.Close()

	event := core.NewEvent(spec.Title, core.EventType(spec.Type), spec.Organizer)
	if spec.VenueRequired != nil {
		event.VenueRequired = *spec.VenueRequired
	}
	if err := m.Documents().Set(ctx, "events", event.ID, event); err != nil {
		return err
	}
	for _, ps := range spec.Participants {
		p := core.NewParticipant(event.ID, ps.UserID)
		if ps.Status != "" {
			p.Status = core.ParticipationStatus(ps.Status)
		}
		for _, s := range ps.Slots {
			p.Slots = append(p.Slots, core.TimeSlot{Start: s.Start, End: s.End, Preference: s.Preference})
		}
		if err := m.Documents().Set(ctx, "participants", p.ID, p); err != nil {
			return err
		}
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.HeartbeatCron, func() {
		m.HeartbeatAll(context.Background())
		m.PruneSessions(context.Background())
	}); err != nil {
		return fmt.Errorf("heartbeat schedule: %w", err)
	}
	c.Start()
	defer c.Stop()

	session, err := m.Plan(ctx, event)
	if err != nil {
		return err
	}

	status, err := m.Status(ctx, session.ID)
	if err != nil {
		return err
	}
	if status.CurrentPhase == core.PhaseFinalConfirmation {
		if err := m.Confirm(ctx, session.ID); err != nil {
			return err
		}
		if err := m.Announce(ctx, session.ID); err != nil {
			return err
		}
		status, err = m.Status(ctx, session.ID)
		if err != nil {
			return err
		}
	}

	var planned core.Event
	if err := m.Documents().Get(ctx, "events", event.ID, &planned); err != nil {
		return err
	}
	summary := map[string]any{
		"session_id": session.ID,
		"phase":      status.CurrentPhase,
		"event":      planned,
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
