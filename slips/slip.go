package slips

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"

	"bazaar/models"

	"github.com/phpdave11/gofpdf"
	"github.com/skip2/go-qrcode"
)

// Payload returns the signed string encoded in a slip's QR code:
// orderID|trackingNumber|signature.
func Payload(o *models.Order, secret []byte) string {
	number := ""
	if o.Tracking != nil {
		number = o.Tracking.Number
	}
	data := fmt.Sprintf("%s|%s", o.ID, number)
	return fmt.Sprintf("%s|%s", data, sign(data, secret))
}

// Verify checks a scanned payload and returns the order id and tracking
// number it names.
func Verify(payload string, secret []byte) (orderID, trackingNumber string, ok bool) {
	i := strings.LastIndex(payload, "|")
	if i < 0 {
		return "", "", false
	}
	data, sig := payload[:i], payload[i+1:]
	if !hmac.Equal([]byte(sig), []byte(sign(data, secret))) {
		return "", "", false
	}
	orderID, trackingNumber, _ = strings.Cut(data, "|")
	return orderID, trackingNumber, orderID != ""
}

func sign(data string, secret []byte) string {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// Render builds the packing slip PDF for o.
func Render(o *models.Order, secret []byte) ([]byte, error) {
	qrPNG, err := qrcode.Encode(Payload(o, secret), qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("generate QR code: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, "Packing Slip")
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 12)
	line := func(format string, args ...any) {
		pdf.Cell(0, 10, tr(fmt.Sprintf(format, args...)))
		pdf.Ln(8)
	}
	line("Order ID: %s", o.ID)
	line("Store: %s", o.Store)
	line("Status: %s", o.Status)
	line("Placed: %s", o.CreatedAt.Format("2006-01-02 15:04 MST"))

	if len(o.ShippingInfo) > 0 {
		pdf.Ln(4)
		pdf.SetFont("Arial", "B", 12)
		line("Ship to")
		pdf.SetFont("Arial", "", 12)
		keys := make([]string, 0, len(o.ShippingInfo))
		for k := range o.ShippingInfo {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			line("%s: %v", k, o.ShippingInfo[k])
		}
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 11)
	widths := []float64{80, 20, 35, 35}
	for i, h := range []string{"Product", "Qty", "Unit price", "Line total"} {
		pdf.CellFormat(widths[i], 8, h, "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 11)
	for _, it := range o.Items {
		pdf.CellFormat(widths[0], 8, tr(it.Product), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 8, fmt.Sprint(it.Quantity), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[2], 8, it.Price.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[3], 8, it.LineTotal().StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(widths[0]+widths[1]+widths[2], 8, "Total", "1", 0, "R", false, 0, "")
	pdf.CellFormat(widths[3], 8, o.Total.StringFixed(2), "1", 1, "R", false, 0, "")

	if t := o.Tracking; t != nil && t.Number != "" {
		pdf.Ln(4)
		pdf.SetFont("Arial", "", 12)
		line("Carrier: %s", t.Carrier)
		line("Tracking number: %s", t.Number)
		if t.EstimatedDelivery != nil {
			line("Estimated delivery: %s", t.EstimatedDelivery.Format("2006-01-02"))
		}
	}

	imageOpts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr", imageOpts, bytes.NewReader(qrPNG))
	pdf.ImageOptions("qr", 150, 20, 40, 40, false, imageOpts, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render slip: %w", err)
	}
	return buf.Bytes(), nil
}
