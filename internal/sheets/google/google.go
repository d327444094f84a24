package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fintrack/internal/log"
	ports "fintrack/internal/sheets"
)

var (
	_ ports.ActivityWriter = (*Client)(nil)
	_ ports.ProgressWriter = (*Client)(nil)
)

var (
	activityHeader = []any{"Time", "Owner", "Event", "Entity", "ID", "Name", "Amount", "Status"}
	progressHeader = []any{"Owner", "Entity", "ID", "Name", "Total", "Done", "Percent", "Status", "Date"}
)

type Config struct {
	SpreadsheetID      string
	ActivitySheet      string // base name; the year of each row is prefixed
	ProgressSheet      string
	ServiceAccountJSON string
	ServiceAccountFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	activityBase  string
	progressSheet string
	logger        *log.Logger
}

// NewFromConfig creates a Sheets client authenticated with a service
// account. Extra options are appended after the credentials.
func NewFromConfig(ctx context.Context, cfg Config, logger *log.Logger, opts ...goption.ClientOption) (*Client, error) {
	spreadsheetID := strings.TrimSpace(cfg.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentSheets)

	if creds, err := serviceAccountCredentials(ctx, cfg, logger); err != nil {
		return nil, err
	} else if creds != nil {
		opts = append([]goption.ClientOption{
			goption.WithCredentialsJSON(creds),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}, opts...)
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	activity := strings.TrimSpace(cfg.ActivitySheet)
	if activity == "" {
		activity = "Activity"
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		activityBase:  activity,
		progressSheet: strings.TrimSpace(cfg.ProgressSheet),
		logger:        logger,
	}, nil
}

// serviceAccountCredentials returns the credentials JSON, or nil when none
// is configured.
func serviceAccountCredentials(ctx context.Context, cfg Config, logger *log.Logger) ([]byte, error) {
	serviceAccountJSON := strings.TrimSpace(cfg.ServiceAccountJSON)
	serviceAccountFile := strings.TrimSpace(cfg.ServiceAccountFile)

	switch {
	case serviceAccountJSON != "":
		logger.InfoContext(ctx, "Using inline service account credentials")
		return []byte(serviceAccountJSON), nil
	case serviceAccountFile != "":
		logger.InfoContext(ctx, "Reading service account credentials", "path", serviceAccountFile)
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	}
	return nil, nil
}

// AppendActivity appends rows to the activity sheet of each row's year,
// for example "2025 Activity".
func (c *Client) AppendActivity(ctx context.Context, rows []ports.ActivityRow) error {
	if len(rows) == 0 {
		return nil
	}
	byYear := make(map[int][][]any)
	var years []int
	for _, r := range rows {
		y := r.Time.Year()
		if _, ok := byYear[y]; !ok {
			years = append(years, y)
		}
		byYear[y] = append(byYear[y], activityValues(r))
	}

	for _, y := range years {
		sheet := yearPrefixedName(c.activityBase, y)
		rng := fmt.Sprintf("%s!A:H", sheet)
		vr := &gsheet.ValueRange{Values: byYear[y]}
		_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
			ValueInputOption("USER_ENTERED").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("append to %s: %w", sheet, err)
		}
		c.logger.DebugContext(ctx, "Appended activity rows", "sheet", sheet, "rows", len(byYear[y]))
	}
	return nil
}

// ReplaceProgress clears the progress sheet and writes a header plus rows.
func (c *Client) ReplaceProgress(ctx context.Context, rows []ports.ProgressRow) error {
	if c.progressSheet == "" {
		return nil
	}
	clearRange := fmt.Sprintf("%s!A:I", c.progressSheet)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", clearRange, err)
	}

	values := make([][]any, 0, len(rows)+1)
	values = append(values, progressHeader)
	for _, r := range rows {
		values = append(values, progressValues(r))
	}
	rng := fmt.Sprintf("%s!A1:I%d", c.progressSheet, len(values))
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	return nil
}

// EnsureHeaders writes the activity header into an empty sheet for year.
func (c *Client) EnsureHeaders(ctx context.Context, year int) error {
	sheet := yearPrefixedName(c.activityBase, year)
	rng := fmt.Sprintf("%s!A1:H1", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read %s: %w", rng, err)
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return nil
	}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{activityHeader}}).
		ValueInputOption("RAW").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header %s: %w", rng, err)
	}
	return nil
}

func activityValues(r ports.ActivityRow) []any {
	return []any{
		r.Time.Format("2006-01-02 15:04:05"),
		r.Owner,
		r.Event,
		r.Entity,
		r.EntityID,
		r.Name,
		r.Amount.Euros(),
		r.Status,
	}
}

func progressValues(r ports.ProgressRow) []any {
	date := ""
	if !r.Date.IsEmpty() {
		date = r.Date.String()
	}
	return []any{
		r.Owner,
		r.Entity,
		r.ID,
		r.Name,
		r.Total.Euros(),
		r.Done.Euros(),
		r.Percent,
		r.Status,
		date,
	}
}

// yearPrefixedName returns "<year> <base>" unless base already starts with
// a four-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
