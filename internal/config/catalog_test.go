package config

import (
	"strings"
	"testing"
	"time"
)

const sampleCatalog = `[
	{"name": "Riding Extreme 3D", "appToken": "d28721be-fd2d-4b45-869e-9f253b554e50", "promoId": "43e35910-c168-4634-ad4f-52fd764a843f", "platform": "android", "eventsDelay": 20000},
	{"name": "Chain Cube 2048", "appToken": "d1690a07-3780-4068-810f-9b5bbf2931b2", "promoId": "b4170868-cef0-424f-8eb9-be0622e8e8e3", "platform": "android", "eventsDelay": 20000},
	{"name": "My Clone Army", "appToken": "74ee0b5b-775e-4bee-974f-63e7f4d5bacb", "promoId": "fe693b26-b342-4159-8808-15e3ff7f8767", "platform": "ios", "eventsDelay": 120000}
]`

func TestLoadCatalog_Valid(t *testing.T) {
	path := createTempFile(t, sampleCatalog)

	catalog, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if catalog.Len() != 3 {
		t.Fatalf("expected 3 games, got %d", catalog.Len())
	}

	game, ok := catalog.Lookup("My Clone Army")
	if !ok {
		t.Fatal("expected to find My Clone Army")
	}
	if game.PromoID != "fe693b26-b342-4159-8808-15e3ff7f8767" {
		t.Errorf("unexpected promo id %q", game.PromoID)
	}
	if game.Platform != "ios" {
		t.Errorf("unexpected platform %q", game.Platform)
	}
	if game.EventsDelay() != 120*time.Second {
		t.Errorf("expected 120s delay, got %v", game.EventsDelay())
	}

	games := catalog.Games()
	if games[0].Name != "Riding Extreme 3D" || games[2].Name != "My Clone Army" {
		t.Errorf("expected file order, got %v", catalog.Names())
	}
	if names := catalog.Names(); names[0] != "Chain Cube 2048" {
		t.Errorf("expected sorted names, got %v", names)
	}
}

func TestLoadCatalog_MissingFileDegradesToEmpty(t *testing.T) {
	catalog, err := LoadCatalog("/nonexistent/games.json")
	if err == nil {
		t.Fatal("expected error to warn with")
	}
	if catalog == nil || catalog.Len() != 0 {
		t.Fatalf("expected empty catalog, got %+v", catalog)
	}
	if _, ok := catalog.Lookup("anything"); ok {
		t.Error("empty catalog should not find games")
	}
}

func TestLoadCatalog_MalformedDegradesToEmpty(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"truncated", `[{"name": "x"`},
		{"not an array", `{"name": "x", "appToken": "a", "promoId": "p"}`},
		{"garbage", `not json at all`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			catalog, err := LoadCatalog(createTempFile(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), "parsing catalog") {
				t.Errorf("unexpected error: %v", err)
			}
			if catalog.Len() != 0 {
				t.Errorf("expected empty catalog, got %d games", catalog.Len())
			}
		})
	}
}

func TestLoadCatalog_SkipsInvalidAndDuplicateRecords(t *testing.T) {
	content := `[
		{"name": "Bike", "appToken": "a1", "promoId": "p1", "platform": "android", "eventsDelay": 1000},
		{"name": "Bike", "appToken": "a2", "promoId": "p2", "platform": "android", "eventsDelay": 1000},
		{"name": "NoToken", "promoId": "p3", "eventsDelay": 1000},
		{"appToken": "a4", "promoId": "p4"}
	]`

	catalog, err := LoadCatalog(createTempFile(t, content))
	if err == nil {
		t.Fatal("expected warnings for skipped records")
	}
	if !strings.Contains(err.Error(), `duplicate name "Bike"`) {
		t.Errorf("expected duplicate warning, got %v", err)
	}
	if !strings.Contains(err.Error(), "missing appToken") || !strings.Contains(err.Error(), "missing name") {
		t.Errorf("expected missing field warnings, got %v", err)
	}
	if catalog.Len() != 1 {
		t.Fatalf("expected 1 valid game, got %d", catalog.Len())
	}
	game, _ := catalog.Lookup("Bike")
	if game.AppToken != "a1" {
		t.Errorf("first record should win, got app token %q", game.AppToken)
	}
}
