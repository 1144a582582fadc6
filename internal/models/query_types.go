// internal/models/query_types.go
package models

// QueryType is the urgency class assigned by the classifier.
type QueryType string

const (
	QueryTypeEmergency         QueryType = "emergency"
	QueryTypeSymptomInquiry    QueryType = "symptom_inquiry"
	QueryTypePreventionInquiry QueryType = "prevention_inquiry"
	QueryTypeMedicalQuestion   QueryType = "medical_question"
	QueryTypeNonMedical        QueryType = "non_medical"
)

// AllQueryTypes lists every query type in classifier priority order.
var AllQueryTypes = []QueryType{
	QueryTypeEmergency,
	QueryTypeSymptomInquiry,
	QueryTypePreventionInquiry,
	QueryTypeMedicalQuestion,
	QueryTypeNonMedical,
}

func (q QueryType) Valid() bool {
	for _, t := range AllQueryTypes {
		if t == q {
			return true
		}
	}
	return false
}

// ContextHint derives the retrieval pre-filter for a query type. An empty
// hint means no filter.
func (q QueryType) ContextHint() string {
	switch q {
	case QueryTypeEmergency:
		return SectionEmergency
	case QueryTypeSymptomInquiry:
		return SectionSymptoms
	case QueryTypePreventionInquiry:
		return SectionPrevention
	default:
		return ""
	}
}

// Language is a detected query language.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageHindi   Language = "hi"
	LanguageBengali Language = "bn"
	LanguageMixed   Language = "mixed"
	LanguageUnknown Language = "unknown"
)

// TextBankLanguage picks the language used for localized text banks.
// Mixed and unknown fall back to English.
func (l Language) TextBankLanguage() Language {
	switch l {
	case LanguageHindi, LanguageBengali:
		return l
	default:
		return LanguageEnglish
	}
}

// Special populations recognised in query text.
const (
	PopulationPregnancy = "pregnancy"
	PopulationPediatric = "pediatric"
	PopulationElderly   = "elderly"
)
