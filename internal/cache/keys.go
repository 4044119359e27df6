package cache

import (
	"strings"

	"github.com/yungbote/vantage-backend/internal/domain/monitor"
)

// Key names are shared with every other reader of the sample store and must
// not change.
const (
	keyPrefix = "samsto"
	sep       = ":"

	SubjectIndexKey = keyPrefix + sep + "subjects"
	AspectIndexKey  = keyPrefix + sep + "aspects"
	SampleIndexKey  = keyPrefix + sep + "samples"

	subjectPrefix   = keyPrefix + sep + "subject" + sep
	aspectPrefix    = keyPrefix + sep + "aspect" + sep
	samplePrefix    = keyPrefix + sep + "sample" + sep
	subAspMapPrefix = keyPrefix + sep + "subaspmap" + sep
	aspSubMapPrefix = keyPrefix + sep + "aspsubmap" + sep

	// SampleNameSeparator joins subject path and aspect name in sample keys.
	SampleNameSeparator = monitor.SampleNameSeparator
)

// Names are case-insensitive; every key is built from the lowercased name.
func normalize(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

func SubjectKey(path string) string { return subjectPrefix + normalize(path) }

func AspectKey(name string) string { return aspectPrefix + normalize(name) }

func SampleKey(subjectPath, aspectName string) string {
	return samplePrefix + normalize(subjectPath) + SampleNameSeparator + normalize(aspectName)
}

// SubjectAspectsKey is the set of aspect names sampled under a subject.
func SubjectAspectsKey(path string) string { return subAspMapPrefix + normalize(path) }

// AspectSubjectsKey is the set of subject paths sampling an aspect.
func AspectSubjectsKey(name string) string { return aspSubMapPrefix + normalize(name) }

// ParseSampleKey splits a sample key into its lowercased subject path and
// aspect name.
func ParseSampleKey(key string) (subjectPath, aspectName string, ok bool) {
	if !strings.HasPrefix(key, samplePrefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(key, samplePrefix)
	i := strings.LastIndex(rest, SampleNameSeparator)
	if i <= 0 || i == len(rest)-1 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}

// SampleKeyPrefixForSubject matches every sample key under a subject path.
func SampleKeyPrefixForSubject(path string) string {
	return samplePrefix + normalize(path) + SampleNameSeparator
}

// SampleKeySuffixForAspect matches every sample key for an aspect name.
func SampleKeySuffixForAspect(name string) string {
	return SampleNameSeparator + normalize(name)
}
