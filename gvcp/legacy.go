package gvcp

import "path/filepath"

// legacyInfo is one (vendor, model) glob pair known to misreport its
// GenICam schema version while still implementing legacy (GenICam 1.0)
// register-access endianness. Carried verbatim from
// original_source/arvgcport.c's arv_gc_port_legacy_infos table per
// spec.md §9: "do not attempt to infer the rule."
type legacyInfo struct {
	vendorSelection string
	modelSelection  string
}

var legacyEndiannessDevices = []legacyInfo{
	{"Imperx", "IpxGEVCamera"},
	{"KowaOptronics", "SC130ET3"},
	{"NIT", "Tachyon16k"},
	{"PleoraTechnologiesInc", "iPORTCLGigE"},
	{"PleoraTechnologiesInc", "NTxGigE"},
	{"TeledyneDALSA", "ICE"},
	{"Sony", "XCG_CGSeries"},
	{"EVK", "HELIOS"},
	{"AT_Automation_Technology_GmbH", "C6_X_GigE"},
}

// UsesLegacyEndiannessMechanism reports whether the named vendor/model
// pair is known to require the legacy endianness mechanism for 4-byte
// register ports, matching against the same glob patterns as the
// original table (vendor and model strings as found in the device's
// GenICam XML RegisterDescription element).
func UsesLegacyEndiannessMechanism(vendor, model string) bool {
	for _, info := range legacyEndiannessDevices {
		vm, _ := filepath.Match(info.vendorSelection, vendor)
		mm, _ := filepath.Match(info.modelSelection, model)
		if vm && mm {
			return true
		}
	}
	return false
}
