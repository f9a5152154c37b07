package transcript

import "strings"

// MatchKind 描述噪声规则的匹配方式。
type MatchKind int

const (
	// Contains 匹配包含该标记的行。
	Contains MatchKind = iota
	// Equals 匹配与标记完全相同的行。
	Equals
)

// NoiseRule 描述一条需要跳过的系统提示行。
type NoiseRule struct {
	Marker   string
	Kind     MatchKind
	FoldCase bool
}

// Match 判断已去除首尾空白的行是否命中该规则。
func (r NoiseRule) Match(line string) bool {
	if r.Marker == "" {
		return false
	}

	candidate, marker := line, r.Marker
	if r.FoldCase {
		candidate = strings.ToLower(candidate)
		marker = strings.ToLower(marker)
	}

	switch r.Kind {
	case Equals:
		return candidate == marker
	default:
		return strings.Contains(candidate, marker)
	}
}

// DefaultNoiseRules 返回常见导出文件中的系统提示规则。
func DefaultNoiseRules() []NoiseRule {
	return []NoiseRule{
		{Marker: "Messages and calls are end-to-end encrypted", Kind: Contains},
		{Marker: "<Media omitted>", Kind: Contains},
		{Marker: "(file attached)", Kind: Contains, FoldCase: true},
		{Marker: "live location shared", Kind: Contains, FoldCase: true},
		{Marker: "null", Kind: Equals, FoldCase: true},
	}
}

// MarkerRules 把额外配置的标记转换为不区分大小写的包含规则。
func MarkerRules(markers []string) []NoiseRule {
	rules := make([]NoiseRule, 0, len(markers))
	for _, marker := range markers {
		marker = strings.TrimSpace(marker)
		if marker == "" {
			continue
		}
		rules = append(rules, NoiseRule{Marker: marker, Kind: Contains, FoldCase: true})
	}
	return rules
}

func isBracketed(line string) bool {
	return strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]")
}
