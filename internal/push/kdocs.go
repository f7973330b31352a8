package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/TobiSchelling/DailyDigest/internal/model"
)

// Record field names in the target table.
const (
	FieldDate    = "日期"
	FieldTLDR    = "TL;DR"
	FieldContent = "内容"
	FieldCount   = "条目数"
)

const maxAPIBytes = 1 << 20

// KdocsOptions points the table sender at the API.
type KdocsOptions struct {
	TokenURL      string
	APIBase       string
	MaxFieldRunes int
}

// KdocsSender appends one record per report to a table sheet.
type KdocsSender struct {
	client *http.Client
	opts   KdocsOptions

	mu     sync.Mutex
	sheets map[string]string // file token -> discovered sheet id
}

// NewKdocsSender creates a KdocsSender. HTTP calls, including the token
// exchange, go through client.
func NewKdocsSender(client *http.Client, opts KdocsOptions) *KdocsSender {
	if opts.MaxFieldRunes <= 0 {
		opts.MaxFieldRunes = 4000
	}
	opts.APIBase = strings.TrimRight(opts.APIBase, "/")
	return &KdocsSender{client: client, opts: opts, sheets: make(map[string]string)}
}

type apiEnvelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// Send creates one record in the channel's sheet, discovering the sheet id
// from the file schema when the channel leaves it empty.
func (k *KdocsSender) Send(ctx context.Context, ch model.PushChannel, report *model.DigestReport) (string, error) {
	if ch.KdocsAppID == "" || ch.KdocsAppSecret == "" || ch.KdocsFileToken == "" {
		return "", fmt.Errorf("channel %s: incomplete table configuration", ch.ID)
	}

	cc := clientcredentials.Config{
		ClientID:     ch.KdocsAppID,
		ClientSecret: ch.KdocsAppSecret,
		TokenURL:     k.opts.TokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	client := cc.Client(context.WithValue(ctx, oauth2.HTTPClient, k.client))

	sheetID := ch.KdocsDBSheetID
	if sheetID == "" {
		var err error
		if sheetID, err = k.sheetID(ctx, client, ch.KdocsFileToken); err != nil {
			return "", err
		}
	}

	record := map[string]any{
		"records": []map[string]any{{
			"fields": map[string]any{
				FieldDate:    report.Date.Format("2006-01-02"),
				FieldTLDR:    model.TruncateRunes(report.TLDR, k.opts.MaxFieldRunes),
				FieldContent: model.TruncateRunes(report.ReportContent, k.opts.MaxFieldRunes),
				FieldCount:   report.TotalItems,
			},
		}},
	}
	endpoint := fmt.Sprintf("%s/files/%s/dbsheet/%s/records", k.opts.APIBase, url.PathEscape(ch.KdocsFileToken), url.PathEscape(sheetID))
	env, raw, err := k.do(ctx, client, http.MethodPost, endpoint, record)
	if err != nil {
		return "", fmt.Errorf("creating record: %w", err)
	}
	if len(env.Data) > 0 {
		return model.TruncateRunes(string(env.Data), maxResponseBytes), nil
	}
	return raw, nil
}

func (k *KdocsSender) sheetID(ctx context.Context, client *http.Client, fileToken string) (string, error) {
	k.mu.Lock()
	id, ok := k.sheets[fileToken]
	k.mu.Unlock()
	if ok {
		return id, nil
	}

	endpoint := fmt.Sprintf("%s/files/%s/dbsheet/schema", k.opts.APIBase, url.PathEscape(fileToken))
	env, _, err := k.do(ctx, client, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("reading sheet schema: %w", err)
	}

	var schema struct {
		Sheets []struct {
			ID json.RawMessage `json:"id"`
		} `json:"sheets"`
	}
	if err := json.Unmarshal(env.Data, &schema); err != nil {
		return "", fmt.Errorf("decoding sheet schema: %w", err)
	}
	if len(schema.Sheets) == 0 {
		return "", fmt.Errorf("file %s has no sheets", fileToken)
	}
	id = strings.Trim(string(schema.Sheets[0].ID), `"`)
	if id == "" {
		return "", fmt.Errorf("file %s: first sheet has no id", fileToken)
	}

	k.mu.Lock()
	k.sheets[fileToken] = id
	k.mu.Unlock()
	return id, nil
}

func (k *KdocsSender) do(ctx context.Context, client *http.Client, method, endpoint string, body any) (*apiEnvelope, string, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, "", err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, "", err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIBytes))
	if err != nil {
		return nil, "", err
	}
	raw := model.TruncateRunes(strings.TrimSpace(string(b)), maxResponseBytes)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, raw, fmt.Errorf("status %d: %s", resp.StatusCode, raw)
	}

	env := &apiEnvelope{}
	if len(bytes.TrimSpace(b)) > 0 {
		if err := json.Unmarshal(b, env); err != nil {
			return nil, raw, fmt.Errorf("decoding response: %w", err)
		}
	}
	if env.Code != 0 {
		return nil, raw, fmt.Errorf("api error %d: %s", env.Code, env.Msg)
	}
	return env, raw, nil
}
