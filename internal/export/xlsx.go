// Package export — выгрузка покупок и объявлений в Excel для администраторов.
package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Spok95/placesdir/internal/domain/places"
	"github.com/Spok95/placesdir/internal/domain/userpackages"
)

const timeLayout = "2006-01-02 15:04:05"

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func write(header []interface{}, rows [][]interface{}) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("export: header: %w", err)
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("export: cell: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return nil, fmt.Errorf("export: row %d: %w", i+2, err)
		}
	}

	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("export: write: %w", err)
	}
	return buf.Bytes(), nil
}

// UserPackages — по строке на покупку.
func UserPackages(items []userpackages.UserPackage) ([]byte, error) {
	header := []interface{}{
		"id", "user_id", "package_id", "package_name", "type",
		"final_price", "status", "usage", "listing_limit", "limit_reached",
		"payment_intent", "paid_at", "created_at",
	}
	rows := make([][]interface{}, 0, len(items))
	for _, u := range items {
		limit := ""
		if u.Package.ListingLimit != nil {
			limit = fmt.Sprint(*u.Package.ListingLimit)
		}
		var intent string
		var paidAt *time.Time
		if u.Charge != nil {
			intent = u.Charge.PaymentIntentID
			paidAt = &u.Charge.PaidAt
		}
		created := u.CreatedAt
		rows = append(rows, []interface{}{
			u.ID,
			u.UserID,
			u.Package.ID,
			u.Package.Name,
			string(u.Package.Type),
			u.Package.FinalPrice.StringFixed(2),
			string(u.Status),
			u.Usage,
			limit,
			u.IsLimitReached,
			intent,
			formatTime(paidAt),
			formatTime(&created),
		})
	}
	return write(header, rows)
}

// Places — по строке на объявление.
func Places(items []places.Place) ([]byte, error) {
	header := []interface{}{
		"id", "user_id", "title", "status", "featured",
		"expires_at", "featured_expires_at", "rating_avg", "rating_count",
		"views", "calls", "likes", "lat", "lng", "user_package_id", "created_at",
	}
	rows := make([][]interface{}, 0, len(items))
	for _, p := range items {
		upID := ""
		if p.UserPackageID != nil {
			upID = *p.UserPackageID
		}
		created := p.CreatedAt
		rows = append(rows, []interface{}{
			p.ID,
			p.UserID,
			p.Title,
			string(p.Status),
			p.IsFeatured,
			formatTime(p.ExpiresAt),
			formatTime(p.FeaturedExpiresAt),
			p.RatingAvg,
			p.RatingCount,
			p.ViewCount,
			p.CallCount,
			p.LikeCount,
			p.Location.Lat,
			p.Location.Lng,
			upID,
			formatTime(&created),
		})
	}
	return write(header, rows)
}

// FileName — имя файла выгрузки с отметкой времени.
func FileName(kind string, now time.Time) string {
	return fmt.Sprintf("%s_%s.xlsx", kind, now.Format("20060102_150405"))
}
