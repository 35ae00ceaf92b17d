package llm

// PromptVersion is part of the analysis cache key; bump it whenever the
// prompts below change in a way that alters the report.
const PromptVersion = "v1"

const (
	// COMPLIANCE_SYSTEM_PROMPT frames every analysis call
	COMPLIANCE_SYSTEM_PROMPT = `You are a regulatory compliance assistant specialising in crypto-asset regulation. Your task is to:
1. Analyze the provided context from regulatory documents
2. Determine if the tokenomics described in the document complies with regulations
3. Provide clear explanations with specific references to regulations
4. Highlight any potential compliance issues
5. Suggest corrective actions if needed
Base your findings only on the supplied regulatory context and the document text.`

	// COMPLIANCE_ANALYSIS_PROMPT is filled with the filename, the document
	// text and the augmented regulatory context
	COMPLIANCE_ANALYSIS_PROMPT = `Review the following tokenomics document for regulatory compliance.

CRITICAL INSTRUCTIONS:
- Return ONLY valid JSON in the exact format specified below
- Do not include any explanatory text, introductions, or markdown formatting
- Every issue must cite the regulation reference it relies on when one applies

DOCUMENT: %s

DOCUMENT TEXT:
%s

REGULATORY CONTEXT:
%s

REQUIRED JSON FORMAT:
{
  "summary": "Two or three sentences on the overall compliance posture",
  "riskScore": 0,
  "overallSeverity": "low|medium|high|critical",
  "issues": [
    {
      "severity": "low|medium|high|critical",
      "category": "e.g. disclosure, investor protection, marketing, custody",
      "description": "What is non-compliant and why",
      "regulationReference": "The regulation and article relied on"
    }
  ],
  "recommendations": [
    "Specific corrective action"
  ]
}

riskScore is an integer from 0 (no risk) to 100 (severe risk).`
)
