package db

import (
	"database/sql"
	"fmt"
	"time"
)

// seedPredicate is one bundled 510(k) catalog record.
type seedPredicate struct {
	kNumber     string
	deviceName  string
	applicant   string
	productCode string
	cleared     string // YYYY-MM-DD
	summary     string
}

// Bundled catalog used when no external predicate data has been loaded.
// A small but realistic cross-section of cleared devices so predicate
// search has something to match against out of the box.
var bundledPredicates = []seedPredicate{
	{"K213678", "Continuous Glucose Monitoring System", "Dexcom Inc", "MDS", "2022-03-14",
		"Wearable sensor and transmitter for continuous interstitial glucose measurement in adults."},
	{"K203182", "Pulse Oximeter, Fingertip", "Masimo Corporation", "DQA", "2021-01-22",
		"Non-invasive fingertip device measuring functional oxygen saturation and pulse rate."},
	{"K192114", "Infusion Pump, Ambulatory", "Smiths Medical", "MEB", "2020-06-09",
		"Portable electronic infusion pump for controlled delivery of fluids and medication."},
	{"K221045", "Electrocardiograph, Single-Channel", "AliveCor Inc", "DPS", "2022-09-30",
		"Single-lead ECG recorder with arrhythmia detection software for over-the-counter use."},
	{"K182790", "Hearing Aid, Air Conduction", "Bose Corporation", "ESD", "2018-10-05",
		"Self-fitting air-conduction hearing aid for adults with mild to moderate hearing loss."},
	{"K210331", "Thermometer, Clinical, Infrared", "Exergen Corporation", "FLL", "2021-05-17",
		"Non-contact infrared thermometer for measurement of body temperature at the forehead."},
	{"K193287", "Blood Pressure Monitor, Wrist", "Omron Healthcare", "DXN", "2020-02-11",
		"Automated oscillometric wrist blood pressure monitor with irregular heartbeat detection."},
	{"K220876", "Ventilator, Continuous, Home Use", "ResMed Ltd", "NOU", "2022-12-02",
		"Continuous positive airway pressure device for treatment of obstructive sleep apnea."},
	{"K201554", "Insulin Pump, Patch", "Insulet Corporation", "LZG", "2021-08-26",
		"Tubeless wearable insulin delivery system with wireless controller."},
	{"K172963", "Nebulizer, Mesh", "Philips Respironics", "CAF", "2018-04-19",
		"Portable vibrating-mesh nebulizer for aerosol drug delivery to the respiratory tract."},
	{"K223410", "Wearable Cardioverter Defibrillator", "Zoll Medical", "MVK", "2023-02-07",
		"Garment-based external defibrillator providing continuous arrhythmia monitoring."},
	{"K214502", "Digital Stethoscope", "Eko Health Inc", "DQD", "2022-06-21",
		"Electronic stethoscope with amplification and murmur detection algorithms."},
}

// SeedPredicates loads the bundled predicate catalog if the table is empty.
func SeedPredicates(db *sql.DB) error {
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM predicate_devices`).Scan(&count); err != nil {
		return fmt.Errorf("failed to count predicate devices: %w", err)
	}
	if count > 0 {
		return nil
	}

	stmt, err := db.Prepare(`
		INSERT INTO predicate_devices (k_number, device_name, applicant, product_code, clearance_date, summary)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare seed statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range bundledPredicates {
		cleared, err := time.Parse("2006-01-02", p.cleared)
		if err != nil {
			return fmt.Errorf("invalid clearance date for %s: %w", p.kNumber, err)
		}
		if _, err := stmt.Exec(p.kNumber, p.deviceName, p.applicant, p.productCode, cleared, p.summary); err != nil {
			return fmt.Errorf("failed to seed predicate %s: %w", p.kNumber, err)
		}
	}

	return nil
}
