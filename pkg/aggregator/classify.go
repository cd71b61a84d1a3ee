package aggregator

import (
	"regexp"

	"github.com/paperscope/paperscope/pkg/config"
)

// Domain is a coarse research-field classification of a query, used to
// pick which sources are most likely to cover it.
type Domain string

const (
	DomainBiomedical  Domain = "biomedical"
	DomainCSAI        Domain = "cs_ai"
	DomainPhysicsMath Domain = "physics_math"
	DomainGeneral     Domain = "general"
)

// domainPriority lists the top sources per domain in preference order.
var domainPriority = map[Domain][]config.SourceName{
	DomainBiomedical:  {config.SourcePubMed, config.SourceSemanticScholar, config.SourceOpenAlex},
	DomainCSAI:        {config.SourceSemanticScholar, config.SourceArxiv, config.SourceOpenAlex},
	DomainPhysicsMath: {config.SourceArxiv, config.SourceOpenAlex, config.SourceSemanticScholar},
	DomainGeneral:     {config.SourceOpenAlex, config.SourceSemanticScholar, config.SourceCORE},
}

var domainPatterns = map[Domain]*regexp.Regexp{
	DomainBiomedical:  regexp.MustCompile(`(?i)\b(cancer|tumou?r|clinical|patient|disease|diagnos\w*|drug|pharma\w*|gene|genom\w*|protein|cell(s|ular)?|therap\w*|medic\w*|biolog\w*|neuro\w*|immun\w*|vaccin\w*|epidemi\w*|surgic\w*|cardio\w*)\b`),
	DomainCSAI:        regexp.MustCompile(`(?i)\b(algorithm\w*|neural|machine learning|deep learning|transformer\w*|language model\w*|llm\w*|artificial intelligence|reinforcement|computer|software|compil\w*|database\w*|distributed|network\w*|robot\w*|nlp|computer vision)\b`),
	DomainPhysicsMath: regexp.MustCompile(`(?i)\b(quantum|particle|photon\w*|cosmolog\w*|astrophys\w*|relativity|thermodynam\w*|superconduct\w*|theorem\w*|topolog\w*|algebra\w*|manifold\w*|differential equation\w*|number theory|combinatori\w*|physics)\b`),
}

// ClassifyDomain assigns a query to the domain whose keyword set it
// matches most often, defaulting to general.
func ClassifyDomain(query string) Domain {
	best := DomainGeneral
	bestCount := 0
	// Fixed evaluation order keeps ties deterministic.
	for _, domain := range []Domain{DomainBiomedical, DomainCSAI, DomainPhysicsMath} {
		count := len(domainPatterns[domain].FindAllString(query, -1))
		if count > bestCount {
			best = domain
			bestCount = count
		}
	}
	return best
}
