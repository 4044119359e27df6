package monitor

// SampleNameSeparator joins the subject path and aspect name in a sample name.
const SampleNameSeparator = "|"

// Sample is a cache-resident aspect value measured against a subject. It is
// never persisted in the system of record.
type Sample struct {
	SubjectPath string
	AspectName  string
	Fields      map[string]string
}

func SampleName(subjectPath, aspectName string) string {
	return subjectPath + SampleNameSeparator + aspectName
}

func (s *Sample) Name() string { return SampleName(s.SubjectPath, s.AspectName) }

func (s *Sample) Status() string { return s.Fields["status"] }

func (s *Sample) Value() string { return s.Fields["value"] }

func (s *Sample) EntityType() string { return "sample" }

func (s *Sample) BroadcastFields() map[string]any {
	out := make(map[string]any, len(s.Fields)+1)
	for k, v := range s.Fields {
		out[k] = v
	}
	out["name"] = s.Name()
	return out
}

func (s *Sample) IdentityFields() []string { return []string{"name"} }
