package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitCommand(t *testing.T) {
	cases := []struct {
		name     string
		args     []string
		wantCmd  string
		wantRest []string
	}{
		{"no args", nil, "analyze", nil},
		{"explicit analyze", []string{"analyze", "--json"}, "analyze", []string{"--json"}},
		{"estimate with flags", []string{"estimate", "--op", "mul"}, "estimate", []string{"--op", "mul"}},
		{"flags only default to analyze", []string{"--json"}, "analyze", []string{"--json"}},
		{"flag value matching a command name", []string{"--reports", "costs"}, "analyze", []string{"--reports", "costs"}},
		{"sync service subcommand", []string{"sync", "install"}, "sync", []string{"install"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd, rest := splitCommand(tc.args)
			assert.Equal(t, tc.wantCmd, cmd)
			assert.Equal(t, tc.wantRest, rest)
		})
	}
}
