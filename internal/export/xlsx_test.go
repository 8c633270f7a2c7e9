package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/Spok95/placesdir/internal/domain/catalog"
	"github.com/Spok95/placesdir/internal/domain/places"
	"github.com/Spok95/placesdir/internal/domain/userpackages"
)

func readRows(t *testing.T, data []byte) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = f.Close() }()
	rows, err := f.GetRows(f.GetSheetName(f.GetActiveSheetIndex()))
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	return rows
}

func TestUserPackages(t *testing.T) {
	limit := 3
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	data, err := UserPackages([]userpackages.UserPackage{{
		ID:     "up-1",
		UserID: "u-1",
		Package: catalog.Package{
			ID: "pkg-1", Name: "Basic", Type: catalog.TypePaidListing,
			FinalPrice: decimal.RequireFromString("9.5"), ListingLimit: &limit,
		},
		Status:    userpackages.StatusPaid,
		Usage:     2,
		Charge:    &userpackages.Charge{PaymentIntentID: "pi_1", PaidAt: created},
		CreatedAt: created,
	}})
	if err != nil {
		t.Fatal(err)
	}

	rows := readRows(t, data)
	if len(rows) != 2 {
		t.Fatalf("rows: got %d, want 2", len(rows))
	}
	want := map[int]string{0: "up-1", 3: "Basic", 5: "9.50", 6: "paid", 7: "2", 8: "3", 10: "pi_1", 12: "2026-01-02 03:04:05"}
	for col, v := range want {
		if rows[1][col] != v {
			t.Errorf("col %d: got %q, want %q", col, rows[1][col], v)
		}
	}
}

func TestPlaces(t *testing.T) {
	exp := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	data, err := Places([]places.Place{
		{ID: "p-1", Title: "Кафе", Status: places.StatusApproved, ExpiresAt: &exp},
		{ID: "p-2", Title: "Bar", Status: places.StatusPending},
	})
	if err != nil {
		t.Fatal(err)
	}
	rows := readRows(t, data)
	if len(rows) != 3 {
		t.Fatalf("rows: got %d, want 3", len(rows))
	}
	if rows[0][0] != "id" || rows[1][2] != "Кафе" || rows[1][5] != "2026-02-01 00:00:00" {
		t.Errorf("unexpected first row: %v", rows[1])
	}
	if rows[2][3] != "Pending" {
		t.Errorf("status: got %q, want Pending", rows[2][3])
	}
}
