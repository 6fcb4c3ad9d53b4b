package schemas

// ClassLabel is the classification assigned to a URL by the ML ensemble,
// possibly escalated by reputation overrides before it is returned.
type ClassLabel string

const (
	ClassLegitimate          ClassLabel = "Legitimate"
	ClassCredentialPhishing  ClassLabel = "CredentialPhishing"
	ClassMalwareDistribution ClassLabel = "MalwareDistribution"

	// ClassSuspicious and ClassMalicious are override dispositions. They are
	// never produced by the classifier itself; only the fusion stage assigns
	// them when reputation sources contradict a Legitimate ML label.
	ClassSuspicious ClassLabel = "Suspicious"
	ClassMalicious  ClassLabel = "Malicious"
)

// ThreatLevel is the coarse risk bucket derived from the final disposition
// and confidence.
type ThreatLevel string

const (
	ThreatLow      ThreatLevel = "low"
	ThreatMedium   ThreatLevel = "medium"
	ThreatHigh     ThreatLevel = "high"
	ThreatCritical ThreatLevel = "critical"
	ThreatUnknown  ThreatLevel = "unknown"
)

// ReputationProvider identifies which external feed produced a reputation
// signal.
type ReputationProvider string

const (
	ProviderVirusTotal   ReputationProvider = "virustotal"
	ProviderSafeBrowsing ReputationProvider = "safebrowsing"
)

// URLFeatures is the opaque feature map produced by the extraction
// collaborator. The fusion engine carries it through to the result without
// interpreting it.
type URLFeatures map[string]float64

// MLSignal is the ensemble's verdict for one URL. Probabilities sum to 1
// across the three classifier labels. Immutable once produced.
type MLSignal struct {
	Label         ClassLabel             `json:"label"`
	Probabilities map[ClassLabel]float64 `json:"probabilities"`
}

// Confidence returns the probability of the winning label.
func (s MLSignal) Confidence() float64 {
	var max float64
	for _, p := range s.Probabilities {
		if p > max {
			max = p
		}
	}
	return max
}

// ReputationSignal is a normalized third-party reputation lookup. When
// Available is false the provider could not be consulted (network failure,
// timeout, rate limit) and Malicious/Score carry no meaning: the fusion
// stage must treat the source as absent, never as clean.
type ReputationSignal struct {
	Source    ReputationProvider `json:"source"`
	Available bool               `json:"available"`
	Malicious bool               `json:"malicious"`

	// Score is confidence-that-clean: 1.0 is a fully trusted clean verdict,
	// 0.0 a confirmed malicious one.
	Score float64 `json:"score"`

	// Detections carries the provider's raw detection counters for display,
	// e.g. virustotal's last_analysis_stats buckets.
	Detections map[string]int `json:"detections,omitempty"`
}

// ErrorDetails is the human-readable expansion of a scan failure, shaped for
// direct rendering by a presentation layer.
type ErrorDetails struct {
	Reason         string   `json:"reason"`
	Explanation    string   `json:"explanation"`
	PossibleCauses []string `json:"possible_causes"`
	UserAction     string   `json:"user_action"`
}

// ScanResult is the complete outcome of scanning a single URL. It is created
// once per scan and never mutated after being returned; every failure mode
// still yields a well-formed result so batches are always fully enumerable.
type ScanResult struct {
	URL             string                 `json:"url"`
	ClassName       *ClassLabel            `json:"class_name"`
	Probabilities   map[ClassLabel]float64 `json:"probabilities,omitempty"`
	ThreatLevel     ThreatLevel            `json:"threat_level"`
	FinalConfidence float64                `json:"final_confidence"`
	Error           *string                `json:"error,omitempty"`
	ErrorDetails    *ErrorDetails          `json:"error_details,omitempty"`
	URLFeatures     URLFeatures            `json:"url_features,omitempty"`
}

// BatchResult aggregates the results of a multi-URL scan. Results holds one
// entry per requested URL, in the same order as the request.
type BatchResult struct {
	Results []ScanResult `json:"results"`
	// ProcessingTime is wall-clock seconds from dispatch to last completion.
	ProcessingTime float64 `json:"processing_time"`
}
