package main

import (
	"io/fs"
	"strings"
	"testing"

	appmigrations "github.com/wolfman30/salon-sms-booking/migrations"
	"github.com/wolfman30/salon-sms-booking/pkg/logging"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		args    []string
		want    migrateCommand
		wantErr bool
	}{
		{args: nil, want: migrateCommand{name: "up"}},
		{args: []string{"DOWN"}, want: migrateCommand{name: "down"}},
		{args: []string{"version"}, want: migrateCommand{name: "version"}},
		{args: []string{"force", "3"}, want: migrateCommand{name: "force", version: 3}},
		{args: []string{"force"}, wantErr: true},
		{args: []string{"force", "x"}, wantErr: true},
		{args: []string{"redo"}, wantErr: true},
	}
	for _, tc := range cases {
		got, err := parseCommand(tc.args)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("parseCommand(%v): expected error", tc.args)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseCommand(%v): %v", tc.args, err)
		}
		if got != tc.want {
			t.Fatalf("parseCommand(%v) = %+v, want %+v", tc.args, got, tc.want)
		}
	}
}

func TestRunRequiresDatabaseURL(t *testing.T) {
	err := run("  ", nil, logging.New("error"))
	if err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("expected DATABASE_URL error, got %v", err)
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(appmigrations.FS, "*.up.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(ups) == 0 {
		t.Fatalf("expected embedded migrations")
	}
	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		if _, err := fs.Stat(appmigrations.FS, down); err != nil {
			t.Fatalf("missing down migration for %s", up)
		}
	}
}
