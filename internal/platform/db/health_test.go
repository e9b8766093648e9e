package db

import (
	"context"
	"errors"
	"testing"
)

func TestRunChecks_AllHealthy(t *testing.T) {
	checks := []Check{
		{Name: "postgres", Ping: func(context.Context) error { return nil }},
		{Name: "redis", Ping: func(context.Context) error { return nil }},
	}

	results, healthy := runChecks(context.Background(), checks)
	if !healthy {
		t.Fatal("expected healthy")
	}
	if results["postgres"] != "ok" || results["redis"] != "ok" {
		t.Errorf("unexpected results: %v", results)
	}
}

func TestRunChecks_OneFailing(t *testing.T) {
	checks := []Check{
		{Name: "postgres", Ping: func(context.Context) error { return nil }},
		{Name: "redis", Ping: func(context.Context) error { return errors.New("connection refused") }},
	}

	results, healthy := runChecks(context.Background(), checks)
	if healthy {
		t.Fatal("expected unhealthy when a check fails")
	}
	if results["redis"] != "connection refused" {
		t.Errorf("expected redis error text, got %q", results["redis"])
	}
	if results["postgres"] != "ok" {
		t.Errorf("expected postgres ok, got %q", results["postgres"])
	}
}

func TestRunChecks_Empty(t *testing.T) {
	results, healthy := runChecks(context.Background(), nil)
	if !healthy || len(results) != 0 {
		t.Fatalf("expected healthy with no results, got %v %v", healthy, results)
	}
}
