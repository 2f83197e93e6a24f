// Package audit builds the periodic configuration audit digest.
package audit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/history"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/impact"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/log"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/types"
)

const (
	// DefaultDays is the digest period when none is given.
	DefaultDays = 7

	maxListedChanges = 20
	maxListedBackups = 5
	maxValueWidth    = 50
)

// RecordSource lists the current config records.
type RecordSource interface {
	All() []types.ConfigRecord
}

// CommitSource lists journal commits since a point in time.
type CommitSource interface {
	Commits(ctx context.Context, since time.Time) ([]history.Commit, error)
}

// BackupSource lists remote backups, newest first.
type BackupSource interface {
	Configured() bool
	List(ctx context.Context, maxResults int) ([]types.BackupEntry, error)
}

// ImpactSource measures the latest change.
type ImpactSource interface {
	MeasureLatest(ctx context.Context, key string, daysBefore, daysAfter int) (*impact.Report, error)
}

// Count is one row of a breakdown table.
type Count struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Digest is the computed audit summary together with its markdown rendering.
type Digest struct {
	GeneratedAt   time.Time            `json:"generated_at"`
	Days          int                  `json:"days"`
	Total         int                  `json:"total"`
	RecentUpdates int                  `json:"recent_updates"`
	HealthScore   int                  `json:"health_score"`
	ByCategory    []Count              `json:"by_category"`
	ByUpdater     []Count              `json:"by_updater"`
	Changes       []history.Commit     `json:"changes"`
	Backups       []types.BackupEntry  `json:"backups,omitempty"`
	Impact        *impact.Report       `json:"impact,omitempty"`
	Records       []types.ConfigRecord `json:"-"`
	Markdown      string               `json:"markdown"`
}

// Reporter assembles digests from the store and its optional collaborators.
type Reporter struct {
	records RecordSource
	commits CommitSource
	backups BackupSource
	impact  ImpactSource
	logger  log.Logger
	now     func() time.Time
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithHistory sets the commit journal.
func WithHistory(c CommitSource) Option {
	return func(r *Reporter) { r.commits = c }
}

// WithBackups sets the backup lister.
func WithBackups(b BackupSource) Option {
	return func(r *Reporter) { r.backups = b }
}

// WithImpact sets the impact analyzer.
func WithImpact(i ImpactSource) Option {
	return func(r *Reporter) { r.impact = i }
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(r *Reporter) { r.logger = logger }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) { r.now = now }
}

// NewReporter creates a Reporter over records.
func NewReporter(records RecordSource, opts ...Option) *Reporter {
	r := &Reporter{
		records: records,
		logger:  log.GetDefaultLogger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithComponent("audit")
	return r
}

// Digest summarizes the last days of activity. Collaborator failures degrade
// their section and are logged.
func (r *Reporter) Digest(ctx context.Context, days int) (*Digest, error) {
	if r.records == nil {
		return nil, types.NewError(types.KindConfigurationMissing, "digest", "no config records available")
	}
	if days <= 0 {
		days = DefaultDays
	}
	now := r.now().UTC()
	since := now.AddDate(0, 0, -days)

	d := &Digest{
		GeneratedAt: now,
		Days:        days,
		Records:     r.records.All(),
	}
	d.Total = len(d.Records)

	categories := make(map[string]int)
	updaters := make(map[string]int)
	recentCutoff := now.AddDate(0, 0, -7)
	for _, rec := range d.Records {
		categories[rec.Category()]++
		updaters[rec.UpdatedBy]++
		if rec.UpdatedAt.After(recentCutoff) {
			d.RecentUpdates++
		}
	}
	d.ByCategory = sortedCounts(categories)
	d.ByUpdater = sortedCounts(updaters)

	if r.commits != nil {
		commits, err := r.commits.Commits(ctx, since)
		if err != nil {
			r.logger.Warn("Could not read change history", log.Err(err))
		} else {
			// newest first
			for i := len(commits) - 1; i >= 0; i-- {
				d.Changes = append(d.Changes, commits[i])
			}
		}
	}
	d.HealthScore = healthScore(len(d.Changes))

	if r.backups != nil && r.backups.Configured() {
		backups, err := r.backups.List(ctx, maxListedBackups)
		if err != nil {
			r.logger.Warn("Could not list backups", log.Err(err))
		} else {
			d.Backups = backups
		}
	}

	if r.impact != nil && d.Total > 0 {
		report, err := r.impact.MeasureLatest(ctx, "", impact.DefaultDaysBefore, impact.DefaultDaysAfter)
		if err != nil {
			r.logger.Warn("Could not measure latest change impact", log.Err(err))
		} else {
			d.Impact = report
		}
	}

	d.Markdown = Render(d)
	r.logger.Info("Audit digest generated",
		log.Int("days", days), log.Int("changes", len(d.Changes)), log.Int("total", d.Total))
	return d, nil
}

func sortedCounts(m map[string]int) []Count {
	out := make([]Count, 0, len(m))
	for k, v := range m {
		out = append(out, Count{Name: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func healthScore(changes int) int {
	score := 100 - changes*2
	if score < 0 {
		return 0
	}
	return score
}

func healthStatus(score int) string {
	switch {
	case score >= 90:
		return "Excellent"
	case score >= 70:
		return "Good"
	}
	return "Needs Review"
}

const (
	dateLayout     = "January 2, 2006"
	dateTimeLayout = "Jan 2, 2006 15:04 MST"
)

// Render formats a digest as markdown.
func Render(d *Digest) string {
	var b strings.Builder

	b.WriteString("# Configuration Management Audit Report\n\n")
	fmt.Fprintf(&b, "**Report Generated:** %s\n", d.GeneratedAt.Format(dateTimeLayout))
	fmt.Fprintf(&b, "**Period:** Last %d days (%s - %s)\n\n", d.Days,
		d.GeneratedAt.AddDate(0, 0, -d.Days).Format(dateLayout), d.GeneratedAt.Format(dateLayout))
	b.WriteString("---\n\n")

	b.WriteString("## Executive Summary\n\n")
	fmt.Fprintf(&b, "- **Total Configuration Parameters:** %d\n", d.Total)
	fmt.Fprintf(&b, "- **Changes in Period:** %d\n", len(d.Changes))
	fmt.Fprintf(&b, "- **Recent Updates (Last 7 days):** %d\n", d.RecentUpdates)
	fmt.Fprintf(&b, "- **Active Contributors:** %d\n\n", len(d.ByUpdater))
	fmt.Fprintf(&b, "**Status:** %s (%d/100)\n\n", healthStatus(d.HealthScore), d.HealthScore)

	b.WriteString("## Configuration Breakdown\n\n")
	b.WriteString("| Category | Count | Percentage |\n")
	b.WriteString("|----------|-------|------------|\n")
	for _, c := range d.ByCategory {
		fmt.Fprintf(&b, "| %s | %d | %.1f%% |\n", strings.ToUpper(c.Name), c.Count, float64(c.Count)/float64(d.Total)*100)
	}
	b.WriteString("\n")

	b.WriteString("## Changes in Period\n\n")
	if len(d.Changes) == 0 {
		fmt.Fprintf(&b, "No configuration changes in the last %d days.\n\n", d.Days)
	} else {
		noun := "changes"
		if len(d.Changes) == 1 {
			noun = "change"
		}
		fmt.Fprintf(&b, "%d configuration %s detected:\n\n", len(d.Changes), noun)
		for i, c := range d.Changes {
			if i == maxListedChanges {
				fmt.Fprintf(&b, "*... and %d more changes.*\n\n", len(d.Changes)-maxListedChanges)
				break
			}
			fmt.Fprintf(&b, "%d. **%s** by %s\n", i+1, c.Timestamp.Format(dateTimeLayout), c.Author)
			fmt.Fprintf(&b, "   - Commit: `%s`\n", c.ShortHash())
			fmt.Fprintf(&b, "   - Message: %s\n\n", c.Message)
		}
	}

	b.WriteString("## Contributors\n\n")
	b.WriteString("| Contributor | Updates |\n")
	b.WriteString("|-------------|---------|\n")
	for _, c := range d.ByUpdater {
		fmt.Fprintf(&b, "| %s | %d |\n", c.Name, c.Count)
	}
	b.WriteString("\n")

	if len(d.Backups) > 0 {
		b.WriteString("## Latest Backups\n\n")
		b.WriteString("| Remote Key | Size | Last Modified |\n")
		b.WriteString("|------------|------|---------------|\n")
		for _, e := range d.Backups {
			fmt.Fprintf(&b, "| `%s` | %d | %s |\n", e.RemoteKey, e.Size, e.LastModified.UTC().Format(dateTimeLayout))
		}
		b.WriteString("\n")
	}

	if d.Impact != nil {
		pc := d.Impact.PercentChange
		fmt.Fprintf(&b, "## Impact of Latest Change (`%s`)\n\n", d.Impact.ConfigKey)
		fmt.Fprintf(&b, "Before %s..%s, after %s..%s\n\n",
			d.Impact.BeforeWindow.Start, d.Impact.BeforeWindow.End, d.Impact.AfterWindow.Start, d.Impact.AfterWindow.End)
		b.WriteString("| Metric | Change |\n")
		b.WriteString("|--------|--------|\n")
		fmt.Fprintf(&b, "| Page views | %+.1f%% |\n", pc.PageViews)
		fmt.Fprintf(&b, "| Sessions | %+.1f%% |\n", pc.Sessions)
		fmt.Fprintf(&b, "| Users | %+.1f%% |\n", pc.Users)
		fmt.Fprintf(&b, "| Bounce rate | %+.1f%% |\n", pc.BounceRate)
		fmt.Fprintf(&b, "| Avg session duration | %+.1f%% |\n", pc.AvgSessionDuration)
		fmt.Fprintf(&b, "| Conversion rate | %+.1f%% |\n\n", pc.ConversionRate)
	}

	b.WriteString("## Current Configuration State\n\n")
	byCategory := make(map[string][]types.ConfigRecord)
	for _, rec := range d.Records {
		byCategory[rec.Category()] = append(byCategory[rec.Category()], rec)
	}
	names := make([]string, 0, len(byCategory))
	for name := range byCategory {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		recs := byCategory[name]
		sort.Slice(recs, func(i, j int) bool { return recs[i].Key < recs[j].Key })
		fmt.Fprintf(&b, "### %s\n\n", strings.ToUpper(name))
		b.WriteString("| Key | Value | Version | Last Updated |\n")
		b.WriteString("|-----|-------|---------|--------------|\n")
		for _, rec := range recs {
			fmt.Fprintf(&b, "| `%s` | %s | v%d | %s |\n",
				rec.Key, truncate(rec.Value), rec.Version, rec.UpdatedAt.UTC().Format(dateTimeLayout))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Recommendations\n\n")
	if len(d.Changes) > 10 {
		fmt.Fprintf(&b, "- High change frequency detected (%d changes). Consider reviewing the change process.\n", len(d.Changes))
	}
	switch {
	case d.RecentUpdates == 0:
		b.WriteString("- No recent updates. Configuration is stable.\n")
	case d.RecentUpdates > 5:
		fmt.Fprintf(&b, "- %d recent updates. Monitor for stability.\n", d.RecentUpdates)
	default:
		fmt.Fprintf(&b, "- %d recent updates. Normal activity level.\n", d.RecentUpdates)
	}
	if len(d.Backups) == 0 {
		b.WriteString("- No remote backups listed. Check backup configuration.\n")
	}
	return b.String()
}

func truncate(v string) string {
	v = strings.ReplaceAll(v, "|", "\\|")
	if len(v) > maxValueWidth {
		return v[:maxValueWidth-3] + "..."
	}
	return v
}
