package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	apperrors "github.com/yairfalse/restitch/internal/errors"
	"github.com/yairfalse/restitch/pkg/types"
)

// Challenge is the anti-automation verification blocking a write.
type Challenge struct {
	Type      string
	SiteKey   string
	TargetURL string
}

// Solver obtains a solved token for a challenge. Implemented by the
// solver package; kept as an interface so the writer tests can stub it.
type Solver interface {
	Solve(ctx context.Context, ch Challenge, clientKey string, proxies []string) (string, error)
}

// FieldPatch is one corrective profile write: the reported field name
// plus the wire body to send.
type FieldPatch struct {
	Field string
	Body  map[string]any
}

// Writer applies corrective field updates to the account service.
// Writes are strictly serialized so concurrent restores cannot
// interleave partial updates to the same remote resource.
type Writer struct {
	client    *Client
	solver    Solver
	targetURL string
	mu        sync.Mutex
}

// NewWriter creates a Writer over the client. solver may be nil when no
// solver credential will ever be supplied; a challenged write then fails
// with a configuration error.
func NewWriter(client *Client, solver Solver) *Writer {
	target := "https://discord.com"
	if u, err := url.Parse(client.apiBase); err == nil && u.Host != "" {
		target = u.Scheme + "://" + u.Host
	}
	return &Writer{client: client, solver: solver, targetURL: target}
}

// challengeBody is the account service's blocked-write response.
type challengeBody struct {
	Message        string   `json:"message"`
	Code           int      `json:"code"`
	CaptchaKey     []string `json:"captcha_key"`
	CaptchaSiteKey string   `json:"captcha_sitekey"`
	CaptchaService string   `json:"captcha_service"`
}

func (b *challengeBody) isChallenge() bool {
	return b.CaptchaSiteKey != "" || len(b.CaptchaKey) > 0
}

// ApplyFieldUpdate sends one field patch. On a challenge response it
// solves the challenge and retries the same patch exactly once with the
// solved token attached; a second failure is fatal. Any other failure
// surfaces the service's own message.
func (w *Writer) ApplyFieldUpdate(ctx context.Context, credential string, patch FieldPatch, solverKey string, proxies []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	resp, err := w.client.patch(ctx, credential, "/users/@me", patch.Body)
	if err != nil {
		return err
	}
	body, status := drain(resp)
	if status >= 200 && status < 300 {
		return nil
	}

	var blocked challengeBody
	_ = json.Unmarshal(body, &blocked)

	if !blocked.isChallenge() {
		return writeRejected(patch.Field, status, &blocked, body)
	}

	if solverKey == "" || w.solver == nil {
		return apperrors.New(apperrors.ErrorTypeSolverMisconfigured, apperrors.ServiceAccount,
			fmt.Sprintf("write to %q is blocked by a verification challenge and no solver key is configured", patch.Field)).
			WithSolutions("set solver.client_key (RESTITCH_SOLVER_KEY) and retry")
	}

	token, err := w.solver.Solve(ctx, Challenge{
		Type:      blocked.CaptchaService,
		SiteKey:   blocked.CaptchaSiteKey,
		TargetURL: w.targetURL,
	}, solverKey, proxies)
	if err != nil {
		return err
	}

	retryBody := make(map[string]any, len(patch.Body)+1)
	for k, v := range patch.Body {
		retryBody[k] = v
	}
	retryBody["captcha_key"] = token

	resp, err = w.client.patch(ctx, credential, "/users/@me", retryBody)
	if err != nil {
		return err
	}
	body, status = drain(resp)
	if status >= 200 && status < 300 {
		return nil
	}

	var retryErr challengeBody
	_ = json.Unmarshal(body, &retryErr)
	return apperrors.New(apperrors.ErrorTypeExternalService, apperrors.ServiceAccount,
		fmt.Sprintf("challenge solved but write to %q still rejected", patch.Field)).
		WithCause(rejectionDetail(status, &retryErr, body))
}

// ProfilePatches expands the diffable profile fields of a stored payload
// into individual write bodies, ordered deterministically.
func ProfilePatches(payload *types.SnapshotPayload) map[string]FieldPatch {
	p := payload.Profile
	patches := map[string]FieldPatch{
		"display_name": {Field: "display_name", Body: map[string]any{"global_name": p.DisplayName}},
		"bio":          {Field: "bio", Body: map[string]any{"bio": p.Bio}},
		"pronouns":     {Field: "pronouns", Body: map[string]any{"pronouns": p.Pronouns}},
	}
	if item, ok := payload.Media[MediaAvatar]; ok && item.Status == types.MediaOK {
		patches["avatar"] = FieldPatch{Field: "avatar", Body: map[string]any{"avatar": MediaDataURI(item)}}
	}
	if item, ok := payload.Media[MediaBanner]; ok && item.Status == types.MediaOK {
		patches["banner"] = FieldPatch{Field: "banner", Body: map[string]any{"banner": MediaDataURI(item)}}
	}
	return patches
}

func drain(resp *http.Response) ([]byte, int) {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return body, resp.StatusCode
}

func writeRejected(field string, status int, blocked *challengeBody, raw []byte) *apperrors.EngineError {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return apperrors.New(apperrors.ErrorTypeUnauthenticated, apperrors.ServiceAccount,
			fmt.Sprintf("account service rejected the credential while writing %q", field))
	}
	return apperrors.New(apperrors.ErrorTypeExternalService, apperrors.ServiceAccount,
		fmt.Sprintf("account service rejected write to %q", field)).
		WithCause(rejectionDetail(status, blocked, raw))
}

func rejectionDetail(status int, body *challengeBody, raw []byte) string {
	if body.Message != "" {
		return fmt.Sprintf("%s (code %d)", body.Message, body.Code)
	}
	return fmt.Sprintf("status %d: %s", status, string(raw))
}
