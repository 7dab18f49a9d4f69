package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/supabase-community/supabase-go"

	"cinegen-server/modules/common/config"
	"cinegen-server/modules/common/logger"
	"cinegen-server/modules/common/model"
)

const exportsTable = "cinegen_project_exports"

// ProjectExport - one row of cinegen_project_exports
type ProjectExport struct {
	ExportID    string                    `json:"export_id"`
	SessionID   string                    `json:"session_id"`
	Title       string                    `json:"title"`
	SceneCount  int                       `json:"scene_count"`
	Characters  string                    `json:"characters,omitempty"`
	VisualStyle model.VisualStyleTemplate `json:"visual_style"`
	ScriptStyle model.ScriptStyleTemplate `json:"script_style"`
	Scenes      []model.GeneratedScene    `json:"scenes"`
	Markdown    string                    `json:"markdown"`
	CreatedAt   time.Time                 `json:"created_at"`
}

type Client struct {
	supabase *supabase.Client
}

// NewClient - Supabase client for project exports
func NewClient(cfg *config.Config) (*Client, error) {
	supabaseClient, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Supabase client: %w", err)
	}
	logger.WithModule("Database").Info("✅ [Database] Supabase client initialized")
	return &Client{supabase: supabaseClient}, nil
}

// InsertProjectExport - store one finished project
func (c *Client) InsertProjectExport(_ context.Context, record ProjectExport) (*ProjectExport, error) {
	log := logger.WithModule("Database")
	log.Infof("📝 [Database] Inserting export %s (%d scenes)", record.ExportID, len(record.Scenes))

	data, _, err := c.supabase.From(exportsTable).
		Insert(record, false, "", "representation", "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to insert export: %w", err)
	}

	var rows []ProjectExport
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse insert response: %w", err)
	}
	if len(rows) == 0 {
		return &record, nil
	}

	log.Infof("✅ [Database] Export %s stored", rows[0].ExportID)
	return &rows[0], nil
}

// FetchProjectExport - look up an export by id; (nil, nil) when absent
func (c *Client) FetchProjectExport(_ context.Context, exportID string) (*ProjectExport, error) {
	logger.WithModule("Database").Infof("🔍 [Database] Fetching export %s", exportID)

	data, _, err := c.supabase.From(exportsTable).
		Select("*", "exact", false).
		Eq("export_id", exportID).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to query exports: %w", err)
	}

	var rows []ProjectExport
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse export response: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}
