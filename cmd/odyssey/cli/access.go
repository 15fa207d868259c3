package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-json"

	"github.com/odyssey-dms/odyssey-dms/internal/access"
	"github.com/odyssey-dms/odyssey-dms/jobs"
)

// AccessCLI offers operator helpers to inspect and invalidate resolved permissions.
type AccessCLI struct {
	gate *access.Gate
	jobs *jobs.Client
}

// NewAccessCLI constructs the helper. Either dependency may be nil when the command that
// needs it is not used.
func NewAccessCLI(gate *access.Gate, client *jobs.Client) *AccessCLI {
	return &AccessCLI{gate: gate, jobs: client}
}

// ExplainOptions defines the flags of the access explain command.
type ExplainOptions struct {
	UserID     int64
	Alias      string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ExplainSummary is the JSON shape of access explain.
type ExplainSummary struct {
	UserID            int64                       `json:"user_id"`
	Effective         access.EffectivePermissions `json:"effective"`
	Policy            access.EmptyPolicy          `json:"empty_restriction_policy"`
	Filter            string                      `json:"filter"`
	FilterArgs        []any                       `json:"filter_args,omitempty"`
	DownloadRemaining *int                        `json:"download_remaining,omitempty"`
	UploadRemaining   *int                        `json:"upload_remaining,omitempty"`
}

// Explain resolves the user and renders the document filter their listings would use.
func (c *AccessCLI) Explain(ctx context.Context, userID int64, alias string) ExplainSummary {
	predicate := c.gate.BuildFilter(ctx, userID, alias)
	summary := ExplainSummary{
		UserID:     userID,
		Effective:  c.gate.Effective(ctx, userID),
		Policy:     c.gate.Policy(),
		Filter:     predicate.Dollar(0),
		FilterArgs: predicate.Args,
	}
	if left, limited := c.gate.RemainingQuota(ctx, userID, access.QuotaDownload); limited {
		summary.DownloadRemaining = &left
	}
	if left, limited := c.gate.RemainingQuota(ctx, userID, access.QuotaUpload); limited {
		summary.UploadRemaining = &left
	}
	return summary
}

// ExplainCommand runs access explain and returns the process exit code.
func (c *AccessCLI) ExplainCommand(ctx context.Context, opts ExplainOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if c == nil || c.gate == nil {
		_, _ = fmt.Fprintln(opts.Stderr, "access explain: gate not configured")
		return 1
	}
	if opts.UserID <= 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "access explain: user id must be positive")
		return 1
	}
	if opts.Alias == "" {
		opts.Alias = "d"
	}
	summary := c.Explain(ctx, opts.UserID, opts.Alias)
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "access explain: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	renderExplain(opts.Stdout, summary)
	return 0
}

func renderExplain(w io.Writer, s ExplainSummary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "user\t%d\n", s.UserID)
	_, _ = fmt.Fprintf(tw, "admin\t%t\n", s.Effective.IsAdmin)
	_, _ = fmt.Fprintf(tw, "groups\t%t\n", s.Effective.HasGroups)
	_, _ = fmt.Fprintf(tw, "policy\t%s\n", s.Policy)

	keys := make([]string, 0, len(s.Effective.Permissions))
	for key := range s.Effective.Permissions {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		_, _ = fmt.Fprintf(tw, "permission %s\t%t\n", key, s.Effective.Permissions[key])
	}
	for _, axis := range access.Axes() {
		ids := formatIDs(s.Effective.Restrictions.IDs(axis))
		if s.Policy == access.EmptyUnrestricted && s.Effective.Unlisted(axis) {
			ids = "any"
		}
		_, _ = fmt.Fprintf(tw, "restriction %s\t%s\n", axis, ids)
	}
	_, _ = fmt.Fprintf(tw, "limit download\t%s\n", formatLimit(s.Effective.Limits.DownloadDaily, s.DownloadRemaining))
	_, _ = fmt.Fprintf(tw, "limit upload\t%s\n", formatLimit(s.Effective.Limits.UploadDaily, s.UploadRemaining))
	_, _ = fmt.Fprintf(tw, "filter\t%s\n", s.Filter)
	if len(s.FilterArgs) > 0 {
		_, _ = fmt.Fprintf(tw, "filter args\t%v\n", s.FilterArgs)
	}
	_ = tw.Flush()
}

func formatIDs(ids []int64) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func formatLimit(limit, remaining *int) string {
	if limit == nil {
		return "unlimited"
	}
	if remaining == nil {
		return strconv.Itoa(*limit)
	}
	return fmt.Sprintf("%d (%d left today)", *limit, *remaining)
}

// ErrInvalidTarget is returned for invalidation targets that cannot be parsed.
var ErrInvalidTarget = errors.New("access invalidate: target must be all, group:<id> or comma separated user ids")

// ParseInvalidateTarget turns a command line target into a job payload.
func ParseInvalidateTarget(target string) (jobs.AccessInvalidatePayload, error) {
	target = strings.TrimSpace(target)
	switch {
	case target == "":
		return jobs.AccessInvalidatePayload{}, ErrInvalidTarget
	case strings.EqualFold(target, "all"):
		return jobs.AccessInvalidatePayload{All: true}, nil
	case strings.HasPrefix(target, "group:"):
		id, err := strconv.ParseInt(strings.TrimPrefix(target, "group:"), 10, 64)
		if err != nil || id <= 0 {
			return jobs.AccessInvalidatePayload{}, ErrInvalidTarget
		}
		return jobs.AccessInvalidatePayload{GroupID: id}, nil
	}
	var ids []int64
	for _, part := range strings.Split(target, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id <= 0 {
			return jobs.AccessInvalidatePayload{}, ErrInvalidTarget
		}
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return jobs.AccessInvalidatePayload{UserIDs: ids}, nil
}

// InvalidateCommand enqueues an invalidation for target and returns the exit code.
func (c *AccessCLI) InvalidateCommand(ctx context.Context, target string, stdout, stderr io.Writer) int {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	if c == nil || c.jobs == nil {
		_, _ = fmt.Fprintln(stderr, "access invalidate: job client not configured")
		return 1
	}
	payload, err := ParseInvalidateTarget(target)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 1
	}
	info, err := c.jobs.EnqueueAccessInvalidate(ctx, payload)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "access invalidate: enqueue: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "enqueued %s (%s) scope=%s\n", info.ID, info.Type, payload.Scope())
	return 0
}
