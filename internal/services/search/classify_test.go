package search

import (
	"testing"

	"github.com/BearBump/ScanDock/internal/models"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name  string
		query string
		want  string
	}{
		{"empty", "", models.SearchKindMixed},
		{"whitespace only", "   ", models.SearchKindMixed},
		{"10 digits", "1234567890", models.SearchKindTracking},
		{"13 digits", "1234567890123", models.SearchKindTracking},
		{"9 digits boundary", "123456789", models.SearchKindMixed},
		{"6 digits boundary", "123456", models.SearchKindMixed},
		{"5 digits", "12345", models.SearchKindMixed},
		{"4 digits", "1234", models.SearchKindTracking},
		{"carrier TBA", "TBA123", models.SearchKindTracking},
		{"carrier tba lowercase", "tba123456789", models.SearchKindTracking},
		{"carrier 1Z", "1Z999AA10123456784", models.SearchKindTracking},
		{"carrier SPXMIA", "SPXMIA00412345", models.SearchKindTracking},
		{"carrier FEDEX", "fedex777", models.SearchKindTracking},
		{"carrier bare prefix", "DHL", models.SearchKindTracking},
		{"short alnum 4", "AB12", models.SearchKindTracking},
		{"short alnum 1", "x", models.SearchKindTracking},
		{"client name", "Maria Gonzalez", models.SearchKindClient},
		{"client 5 chars boundary", "Maria", models.SearchKindClient},
		{"letters no carrier prefix", "XY999888", models.SearchKindClient},
		{"punctuation long", "12-34-56", models.SearchKindMixed},
		{"punctuation short", "a-1", models.SearchKindMixed},
		{"trims whitespace", "  1234567890  ", models.SearchKindTracking},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Classify(tc.query))
		})
	}
}
