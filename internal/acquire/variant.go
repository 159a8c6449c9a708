package acquire

import (
	"fmt"
	"strings"
)

// Variant is a target weight precision / quantization scheme.
type Variant string

const (
	INT4    Variant = "INT4"
	INT8    Variant = "INT8"
	FP16    Variant = "FP16"
	INT4NPU Variant = "INT4-NPU"
	INT4AWQ Variant = "INT4-AWQ"
)

// Variants lists the variants offered to users for selection.
var Variants = []Variant{INT4, INT8, FP16}

var knownVariants = map[Variant]struct{}{
	INT4: {}, INT8: {}, FP16: {}, INT4NPU: {}, INT4AWQ: {},
}

// ParseVariant parses a variant name case-insensitively.
func ParseVariant(s string) (Variant, error) {
	v := Variant(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := knownVariants[v]; !ok {
		return "", fmt.Errorf("unknown compression variant %q", s)
	}
	return v, nil
}

// WeightFormat is the converter's --weight-format value: the lowercase
// prefix before the first '-' ("INT4-NPU" -> "int4").
func (v Variant) WeightFormat() string {
	head, _, _ := strings.Cut(string(v), "-")
	return strings.ToLower(head)
}

// IsINT4 reports whether compression parameters apply to this variant.
func (v Variant) IsINT4() bool { return strings.Contains(string(v), "INT4") }

// IsNPU reports whether the variant targets NPU hardware.
func (v Variant) IsNPU() bool { return strings.Contains(string(v), "NPU") }

// IsAWQ reports whether activation-aware quantization is requested.
func (v Variant) IsAWQ() bool { return strings.Contains(string(v), "AWQ") }

func (v Variant) String() string { return string(v) }
