package taskdoc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `# fe-task-001: Login form

## 📋 AGENT INSTRUCTIONS
Build the login form.

### Acceptance
- validates email

## 🤖 AGENT REPORT
_pending_

## ✅ AUDIT REPORT
_pending_

## 📝 CASE LOG (Manager AI)
created
`

func TestUpsertSection_ReplacesBody(t *testing.T) {
	got := UpsertSection(sampleDoc, "🤖 AGENT REPORT", "Status: done")

	body, ok := FindSection(got, "AGENT REPORT")
	require.True(t, ok)
	assert.Equal(t, "Status: done", body)
	assert.Contains(t, got, "## 🤖 AGENT REPORT\nStatus: done\n\n## ✅ AUDIT REPORT")
}

func TestUpsertSection_Idempotent(t *testing.T) {
	labels := []string{
		"🤖 AGENT REPORT",
		"AUDIT REPORT",
		"📝 CASE LOG (Manager AI)",
		"📋 AGENT INSTRUCTIONS",
		"NEW SECTION",
	}
	for _, label := range labels {
		t.Run(label, func(t *testing.T) {
			once := UpsertSection(sampleDoc, label, "body line 1\nbody line 2\n")
			twice := UpsertSection(once, label, "body line 1\nbody line 2\n")
			assert.Equal(t, once, twice)
		})
	}
}

func TestUpsertSection_Isolation(t *testing.T) {
	labels := []string{"📋 AGENT INSTRUCTIONS", "🤖 AGENT REPORT", "✅ AUDIT REPORT", "📝 CASE LOG (Manager AI)"}

	for _, a := range labels {
		updated := UpsertSection(sampleDoc, a, "rewritten by "+a)
		for _, b := range labels {
			if a == b {
				continue
			}
			before, ok := FindSection(sampleDoc, b)
			require.True(t, ok, b)
			after, ok := FindSection(updated, b)
			require.True(t, ok, b)
			assert.Equal(t, before, after, "upserting %q changed %q", a, b)
		}
	}
}

func TestUpsertSection_AppendOnAbsence(t *testing.T) {
	doc := "# task\n\n## 📋 AGENT INSTRUCTIONS\ndo it\n"

	got := UpsertSection(doc, "🤖 AGENT REPORT", "done")

	require.True(t, strings.HasPrefix(got, doc), "existing bytes must be preserved as a prefix")
	assert.Equal(t, "\n\n## 🤖 AGENT REPORT\ndone\n", got[len(doc):])
	assert.Greater(t, len(got), len(doc))
}

func TestUpsertSection_SubHeaderDoesNotEndSection(t *testing.T) {
	body, ok := FindSection(sampleDoc, "AGENT INSTRUCTIONS")
	require.True(t, ok)
	assert.Contains(t, body, "### Acceptance")
	assert.Contains(t, body, "- validates email")
}

func TestUpsertSection_BodyWithLevelTwoHeaders(t *testing.T) {
	body := "Status: passed\n\n## Summary\nall good"

	once := UpsertSection(sampleDoc, "✅ AUDIT REPORT", body)
	twice := UpsertSection(once, "✅ AUDIT REPORT", body)
	assert.Equal(t, once, twice)
	assert.Equal(t, 1, strings.Count(twice, "all good"))
	assert.Contains(t, twice, "### Summary\nall good")

	got, ok := FindSection(twice, "AUDIT REPORT")
	require.True(t, ok)
	assert.Equal(t, "Status: passed\n\n### Summary\nall good", got)

	caseLog, ok := FindSection(twice, "CASE LOG (Manager AI)")
	require.True(t, ok)
	assert.Equal(t, "created", caseLog)

	appended := UpsertSection("# t\n", "NOTES", body)
	assert.Equal(t, appended, UpsertSection(appended, "NOTES", body))
}

func TestUpsertSection_MatchingPolicy(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		label  string
		expect bool
	}{
		{"case insensitive", "## 🤖 agent report\nx\n", "AGENT REPORT", true},
		{"decorative prefix optional in label", "## ✅ AUDIT REPORT\nx\n", "AUDIT REPORT", true},
		{"decorative prefix optional in doc", "## AUDIT REPORT\nx\n", "✅ AUDIT REPORT", true},
		{"regex metacharacters escaped", "## 📝 CASE LOG (Manager AI)\nx\n", "CASE LOG (Manager AI)", true},
		{"metacharacters not treated as pattern", "## CASE LOG Manager AI\nx\n", "CASE LOG (Manager AI)", false},
		{"sub header is not a match", "### AGENT REPORT\nx\n", "AGENT REPORT", false},
		{"label must equal header text", "## AUDIT AGENT REPORT\nx\n", "AGENT REPORT", false},
		{"trailing whitespace tolerated", "## AGENT REPORT  \nx\n", "AGENT REPORT", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := FindSection(tt.doc, tt.label)
			assert.Equal(t, tt.expect, ok)
		})
	}
}

func TestUpsertSection_HeaderAtEndOfFile(t *testing.T) {
	doc := "# task\n\n## 🤖 AGENT REPORT"

	got := UpsertSection(doc, "AGENT REPORT", "filled")
	assert.Equal(t, "# task\n\n## 🤖 AGENT REPORT\nfilled\n", got)
	assert.Equal(t, got, UpsertSection(got, "AGENT REPORT", "filled"))
}

func TestUpsertSection_PreservesHeaderLine(t *testing.T) {
	doc := "## 🤖 agent report\nold\n"
	got := UpsertSection(doc, "🤖 AGENT REPORT", "new")
	assert.Equal(t, "## 🤖 agent report\nnew\n", got)
}

func TestBareLabel(t *testing.T) {
	assert.Equal(t, "AGENT REPORT", bareLabel("🤖 AGENT REPORT"))
	assert.Equal(t, "CASE LOG (Manager AI)", bareLabel("📝 CASE LOG (Manager AI)"))
	assert.Equal(t, "AGENT REPORT", bareLabel("  AGENT REPORT "))
}
