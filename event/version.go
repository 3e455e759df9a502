package event

import (
	"regexp"
	"strings"
)

// Banner is the simulator family identified by the first line of a trace.
type Banner byte

// Known banners. Traces written by any of these simulators share the subset of
// the format understood here.
const (
	BannerNone Banner = iota
	BannerEpic
	BannerNanosim
	BannerUltrasim
	BannerHsim
	BannerPowermill
	BannerTimemill
	bannerCount
)

var banners = [bannerCount]struct {
	name string
	re   *regexp.Regexp
}{
	BannerNone:      {`None`, nil},
	BannerEpic:      {`Epic`, regexp.MustCompile(`(?i)^\s*epic\b`)},
	BannerNanosim:   {`Nanosim`, regexp.MustCompile(`(?i)\bnanosim\b`)},
	BannerUltrasim:  {`UltraSim`, regexp.MustCompile(`(?i)\bultrasim\b`)},
	BannerHsim:      {`HSIM`, regexp.MustCompile(`(?i)\bhsim\b`)},
	BannerPowermill: {`PowerMill`, regexp.MustCompile(`(?i)\bpowermill\b`)},
	BannerTimemill:  {`TimeMill`, regexp.MustCompile(`(?i)\btimemill\b`)},
}

// RecognizeBanner returns the Banner named by line, or BannerNone.
func RecognizeBanner(line string) Banner {
	line = strings.TrimSpace(line)
	if line == `` || line[0] == '.' || line[0] == ';' {
		return BannerNone
	}
	for b := BannerEpic; b < bannerCount; b++ {
		if banners[b].re.MatchString(line) {
			return b
		}
	}
	return BannerNone
}

// Valid returns true for a recognized banner.
func (b Banner) Valid() bool {
	return BannerNone < b && b < bannerCount
}

// String implements fmt.Stringer.
func (b Banner) String() string {
	if b >= bannerCount {
		return `Banner(none)`
	}
	return `Banner(` + banners[b].name + `)`
}
