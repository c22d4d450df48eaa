package flagx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		allowed []string
		want    []string
	}{
		{
			name:    "separate value",
			args:    []string{"-c", "conf.json", "-d", "file:x.db"},
			allowed: []string{"-c", "-config"},
			want:    []string{"-c", "conf.json"},
		},
		{
			name:    "equals form",
			args:    []string{"-config=alt.json", "-d", "file:x.db"},
			allowed: []string{"-c", "-config"},
			want:    []string{"-config=alt.json"},
		},
		{
			name:    "unknown flags and positionals dropped",
			args:    []string{"-x", "1", "--y=2", "positional"},
			allowed: []string{"-c"},
			want:    []string{},
		},
		{
			name:    "missing value at end",
			args:    []string{"-c"},
			allowed: []string{"-c"},
			want:    []string{"-c"},
		},
		{
			name:    "next flag is not a value",
			args:    []string{"-c", "-secret", "s"},
			allowed: []string{"-c"},
			want:    []string{"-c"},
		},
		{
			name:    "several allowed flags keep their order",
			args:    []string{"-env-file", "prod.env", "-log", "json", "-c", "conf.json"},
			allowed: []string{"-c", "-env-file"},
			want:    []string{"-env-file", "prod.env", "-c", "conf.json"},
		},
		{
			name:    "repeats kept",
			args:    []string{"-c", "one.json", "-c", "two.json"},
			allowed: []string{"-c"},
			want:    []string{"-c", "one.json", "-c", "two.json"},
		},
		{
			name:    "empty",
			args:    nil,
			allowed: []string{"-c"},
			want:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterArgs(tt.args, tt.allowed))
		})
	}
}

func TestLookupString(t *testing.T) {
	assert.Equal(t, "/etc/short.json", LookupString([]string{"-c", "/etc/short.json"}, "c", "config"))
	assert.Equal(t, "/etc/long.json", LookupString([]string{"--config=/etc/long.json"}, "c", "config"))
	assert.Equal(t, "2.json", LookupString([]string{"-c", "1.json", "-config", "2.json"}, "c", "config"))
	assert.Empty(t, LookupString([]string{"-d", "file:x.db", "-log", "zap"}, "c", "config"))
	assert.Equal(t, "prod.env", LookupString([]string{"-log", "zap", "-env-file", "prod.env"}, "env-file"))
}
