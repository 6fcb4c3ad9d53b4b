// File: internal/fusion/errordetails.go
package fusion

import (
	"errors"

	"github.com/urlverdict/verdict-cli/api/schemas"
	"github.com/urlverdict/verdict-cli/internal/features"
)

// fetchFailedReason is the stable reason string for every content-fetch
// failure; the explanation and causes vary by failure kind.
const fetchFailedReason = "Content Fetch Failed"

// fetchDetails maps each fetch failure kind to its user-facing explanation.
var fetchDetails = map[features.FetchKind]schemas.ErrorDetails{
	features.FetchDNS: {
		Reason:      fetchFailedReason,
		Explanation: "The domain name could not be resolved.",
		PossibleCauses: []string{
			"Domain has expired or been taken down",
			"Domain is blocked by security filters",
			"DNS configuration issues",
			"Potentially malicious domain that has been sinkholed",
		},
		UserAction: "Double-check the URL for typos. If correct, this domain may be suspicious or no longer active.",
	},
	features.FetchTimeout: {
		Reason:      fetchFailedReason,
		Explanation: "The website did not respond within the allowed time.",
		PossibleCauses: []string{
			"Server is overloaded or down",
			"Network connectivity issues",
			"Website is blocking automated requests",
			"Slow or unreliable hosting",
		},
		UserAction: "Try accessing the website directly in your browser to verify if it loads normally.",
	},
	features.FetchRefused: {
		Reason:      fetchFailedReason,
		Explanation: "The server actively refused the connection.",
		PossibleCauses: []string{
			"Website is down or under maintenance",
			"Server configuration issues",
			"Firewall blocking requests",
			"Website no longer exists",
		},
		UserAction: "Check if the website loads in your browser. The site may be temporarily unavailable.",
	},
	features.FetchTLS: {
		Reason:      fetchFailedReason,
		Explanation: "There was an issue with the website's security certificate.",
		PossibleCauses: []string{
			"Expired security certificate",
			"Invalid or self-signed certificate",
			"Potential security risk",
			"Misconfigured HTTPS",
		},
		UserAction: "Be cautious. This could indicate a security risk; verify the website's legitimacy before proceeding.",
	},
	features.FetchHTTP: {
		Reason:      fetchFailedReason,
		Explanation: "The website returned an error response.",
		PossibleCauses: []string{
			"Page not found (404)",
			"Server error (500)",
			"Access forbidden (403)",
			"Website maintenance",
		},
		UserAction: "The specific page may not exist or the website may be experiencing issues.",
	},
	features.FetchMalformed: {
		Reason:      "Invalid URL Format",
		Explanation: "The provided URL is not properly formatted.",
		PossibleCauses: []string{
			"Missing protocol (http:// or https://)",
			"Invalid characters in URL",
			"Malformed domain name",
			"Incomplete URL",
		},
		UserAction: "Please check the URL format and ensure it includes the full web address.",
	},
}

// genericFetchDetails covers failure kinds without a dedicated entry.
var genericFetchDetails = schemas.ErrorDetails{
	Reason:      fetchFailedReason,
	Explanation: "Unable to retrieve this URL's content due to technical issues.",
	PossibleCauses: []string{
		"Network connectivity problems",
		"Website protection mechanisms",
		"Temporary service unavailability",
	},
	UserAction: "Please try again later or verify the URL manually in your browser.",
}

// classifierUnavailableDetails explains a scan where the ensemble failed and
// no reputation feed answered either.
var classifierUnavailableDetails = schemas.ErrorDetails{
	Reason:      "Analysis Failed",
	Explanation: "The classifier could not score this URL and no reputation source was reachable.",
	PossibleCauses: []string{
		"Inference service outage",
		"Network connectivity problems",
		"Temporary reputation feed unavailability",
	},
	UserAction: "Please try again later.",
}

// batchTimeoutDetails explains a result synthesized for a pipeline cancelled
// by the batch deadline.
var batchTimeoutDetails = schemas.ErrorDetails{
	Reason:      "Scan Timed Out",
	Explanation: "This URL's scan was still running when the batch deadline expired.",
	PossibleCauses: []string{
		"Slow-responding target website",
		"Reputation service latency",
		"Batch deadline set too aggressively",
	},
	UserAction: "Rescan this URL individually or with a longer batch timeout.",
}

// DetailsForFetchError resolves the user-facing explanation for a content
// fetch failure.
func DetailsForFetchError(err error) schemas.ErrorDetails {
	var fe *features.FetchError
	if errors.As(err, &fe) {
		if d, ok := fetchDetails[fe.Kind]; ok {
			return d
		}
	}
	return genericFetchDetails
}
