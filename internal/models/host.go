package models

// HostInfo describes the machine a bench run executed on.
type HostInfo struct {
	OS            string `json:"os"`
	Arch          string `json:"arch"`
	CPU           string `json:"cpu"`
	PhysicalCores int    `json:"physical_cores"`
	LogicalCores  int    `json:"logical_cores"`
	AVX2          bool   `json:"avx2"`
	AVX512        bool   `json:"avx512"`
}
