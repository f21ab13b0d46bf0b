package parse

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSalaryRange(t *testing.T) {
	t.Parallel()

	t.Run("range with indicator", func(t *testing.T) {
		t.Parallel()
		min, max, text := SalaryRange("$120,000 - $150,000 per year")
		require.NotNil(t, min)
		require.NotNil(t, max)
		require.Equal(t, 120000, *min)
		require.Equal(t, 150000, *max)
		require.Equal(t, "$120,000 - $150,000 per year", text)
	})

	t.Run("single number", func(t *testing.T) {
		t.Parallel()
		min, max, _ := SalaryRange("salary 95000")
		require.Equal(t, 95000, *min)
		require.Equal(t, 95000, *max)
	})

	t.Run("no indicator means no salary", func(t *testing.T) {
		t.Parallel()
		min, max, text := SalaryRange("Join a team of 12 engineers")
		require.Nil(t, min)
		require.Nil(t, max)
		require.Empty(t, text)
	})

	t.Run("indicator without numbers keeps text only", func(t *testing.T) {
		t.Parallel()
		min, max, text := SalaryRange("competitive salary")
		require.Nil(t, min)
		require.Nil(t, max)
		require.Equal(t, "competitive salary", text)
	})

	t.Run("empty input", func(t *testing.T) {
		t.Parallel()
		min, max, text := SalaryRange("")
		require.Nil(t, min)
		require.Nil(t, max)
		require.Empty(t, text)
	})
}

func TestTitleCompany(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in          string
		wantTitle   string
		wantCompany string
	}{
		{"Backend Engineer at Acme Corp", "Backend Engineer", "Acme Corp"},
		{"SRE @ Initech", "SRE", "Initech"},
		{"Data Engineer | Globex", "Data Engineer", "Globex"},
		{"Platform Engineer - Hooli", "Platform Engineer", "Hooli"},
		{"Staff Engineer — Umbrella", "Staff Engineer", "Umbrella"},
		{"Solo Title With No Separator", "Solo Title With No Separator", ""},
	}

	for _, tc := range tests {
		title, company := TitleCompany(tc.in)
		require.Equal(t, tc.wantTitle, title, "input %q", tc.in)
		require.Equal(t, tc.wantCompany, company, "input %q", tc.in)
	}
}

func TestTokenizeKeepsTechSpellings(t *testing.T) {
	t.Parallel()

	tokens := tokenize("C++ and C# plus node.js, Go!")
	require.Contains(t, tokens, "C++")
	require.Contains(t, tokens, "C#")
	require.Contains(t, tokens, "node.js")
	require.Contains(t, tokens, "Go")
}

func TestSkillLabels(t *testing.T) {
	t.Parallel()

	skills := Skills("Senior Golang engineer, Kubernetes and Postgres experience")
	require.Equal(t, []string{"Go", "Kubernetes", "PostgreSQL"}, skills)
}

func TestSkillLabelsWholeWordOnly(t *testing.T) {
	t.Parallel()

	// "Mongoose" must not match "go".
	require.Empty(t, Skills("Mongoose wrangler"))
}

func TestRareTags(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"Polar"}, RareTags("Antarctic research station technician"))
	require.Empty(t, RareTags("Regular office job"))
}
