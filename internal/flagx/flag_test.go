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
			args:    []string{"-c", "conf.json", "-a", "localhost"},
			allowed: []string{"-c", "--config"},
			want:    []string{"-c", "conf.json"},
		},
		{
			name:    "equals form",
			args:    []string{"--config=alt.json", "-a", "localhost"},
			allowed: []string{"-c", "--config"},
			want:    []string{"--config=alt.json"},
		},
		{
			name:    "order preserved",
			args:    []string{"--config=first.json", "-c", "second.json", "-x", "1"},
			allowed: []string{"-c", "--config"},
			want:    []string{"--config=first.json", "-c", "second.json"},
		},
		{
			name:    "unknown flags ignored",
			args:    []string{"-x", "1", "--y=2", "positional"},
			allowed: []string{"-c"},
			want:    []string{},
		},
		{
			name:    "boolean style flag followed by another flag",
			args:    []string{"-v", "-a", ":50051"},
			allowed: []string{"-v", "-a"},
			want:    []string{"-v", "-a", ":50051"},
		},
		{
			name:    "flag at end without value",
			args:    []string{"-a", ":1", "-d"},
			allowed: []string{"-d"},
			want:    []string{"-d"},
		},
		{
			name:    "empty input",
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

func TestConfigFileFlag(t *testing.T) {
	assert.Equal(t, "server.json", ConfigFileFlag([]string{"-a", ":1", "-c", "server.json"}))
	assert.Equal(t, "server.yaml", ConfigFileFlag([]string{"-config", "server.yaml", "-d", "dsn"}))
	assert.Equal(t, "x.yml", ConfigFileFlag([]string{"-config=x.yml"}))
	assert.Equal(t, "", ConfigFileFlag([]string{"-a", ":1"}))
	assert.Equal(t, "", ConfigFileFlag(nil))
}
