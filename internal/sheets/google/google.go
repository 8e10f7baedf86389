package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/samber/lo"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"deals/internal/core"
	ports "deals/internal/sheets"
)

// Ensure interface conformance
var _ ports.DealSheet = (*Client)(nil)

// Config selects the spreadsheet and the service account used to reach it.
// CredentialsJSON wins over CredentialsFile when both are set.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string

	// mu serializes row lookups with the writes that depend on them; the
	// sweep and the AMQP consumer share one client.
	mu sync.Mutex
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	spreadsheetID := strings.TrimSpace(cfg.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	sheetName := strings.TrimSpace(cfg.SheetName)
	if sheetName == "" {
		sheetName = "Deals"
	}

	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetName: sheetName}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Falls back to GOOGLE_APPLICATION_CREDENTIALS when cfg names none.
func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	credentialsFile := strings.TrimSpace(cfg.CredentialsFile)
	if cfg.CredentialsJSON == "" && credentialsFile == "" {
		credentialsFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case cfg.CredentialsJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(cfg.CredentialsJSON)
	case credentialsFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", credentialsFile)
		data, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = data
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created successfully")
	return service, nil
}

// EnsureHeader writes the column names into row 1 when they are missing or stale.
func (c *Client) EnsureHeader(ctx context.Context) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	header := ports.Header()
	rng := c.rowRange(1, len(header))
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read header %s: %w", rng, err)
	}
	if len(resp.Values) == 1 && slices.Equal(toStrings(resp.Values[0]), header) {
		return nil
	}

	vr := &gsheet.ValueRange{Values: [][]any{lo.ToAnySlice(header)}}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write header %s: %w", rng, err)
	}
	slog.InfoContext(ctx, "Wrote deal sheet header", "sheet", c.sheetName)
	return nil
}

// UpsertDeal rewrites the deal's row in place, or appends one when the id
// is not on the sheet yet.
func (c *Client) UpsertDeal(ctx context.Context, d core.Deal) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	ids, err := c.readIDs(ctx)
	if err != nil {
		return "", err
	}

	row := findRow(ids, d.ID)
	if row == 0 {
		row = max(len(ids)+1, 2)
	}

	values := ports.Row(d)
	rng := c.rowRange(row, len(values))
	vr := &gsheet.ValueRange{Values: [][]any{lo.ToAnySlice(values)}}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("failed to update %s: %w", rng, err)
	}
	return rng, nil
}

// DeleteDeal removes the deal's row, shifting the rows below it up.
func (c *Client) DeleteDeal(ctx context.Context, id int64) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	ids, err := c.readIDs(ctx)
	if err != nil {
		return err
	}
	row := findRow(ids, id)
	if row == 0 {
		slog.InfoContext(ctx, "Deal not on sheet, nothing to delete", "id", id)
		return nil
	}

	sheetID, err := c.sheetID(ctx)
	if err != nil {
		return err
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			DeleteDimension: &gsheet.DeleteDimensionRequest{
				Range: &gsheet.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: int64(row - 1),
					EndIndex:   int64(row),
				},
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete row %d in %s: %w", row, c.sheetName, err)
	}
	return nil
}

func (c *Client) readIDs(ctx context.Context) ([][]any, error) {
	rng := fmt.Sprintf("%s!A:A", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return resp.Values, nil
}

func (c *Client) sheetID(ctx context.Context) (int64, error) {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read spreadsheet properties: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == c.sheetName {
			return s.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found", c.sheetName)
}

func (c *Client) rowRange(row, width int) string {
	return fmt.Sprintf("%s!A%d:%s%d", c.sheetName, row, columnLetter(width), row)
}

// findRow returns the 1-based row whose first cell holds id, or 0.
// Row 1 is the header and never matches.
func findRow(values [][]any, id int64) int {
	want := strconv.FormatInt(id, 10)
	for i, row := range values {
		if i == 0 || len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == want {
			return i + 1
		}
	}
	return 0
}

// columnLetter converts a 1-based column number to A1 notation.
func columnLetter(n int) string {
	var out []byte
	for n > 0 {
		n--
		out = append([]byte{byte('A' + n%26)}, out...)
		n /= 26
	}
	return string(out)
}

func toStrings(in []any) []string {
	return lo.Map(in, func(v any, _ int) string { return strings.TrimSpace(fmt.Sprint(v)) })
}
