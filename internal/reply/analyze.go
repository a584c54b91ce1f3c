// Package reply inspects model replies to decide which follow-up MCP
// generations a chat turn should trigger.
package reply

import "strings"

var diagramTriggers = []string{
	"generar diagrama",
	"generaré un diagrama",
	"diagrama",
	"arquitectura",
	"diagram",
	"architecture",
	"visualizar",
}

var cloudFormationTriggers = []string{
	"cloudformation",
	"iac",
	"template",
	"plantilla",
	"infraestructura como código",
	"infrastructure as code",
}

// knownServices is matched in order; output keeps this order.
var knownServices = []string{
	"EC2",
	"Lambda",
	"S3",
	"RDS",
	"DynamoDB",
	"API Gateway",
	"CloudFront",
	"Route 53",
	"VPC",
	"ELB",
	"Auto Scaling",
	"ECS",
	"EKS",
	"Fargate",
	"SQS",
	"SNS",
	"EventBridge",
	"Step Functions",
	"Cognito",
	"CloudWatch",
	"IAM",
	"KMS",
	"ElastiCache",
	"Aurora",
	"Kinesis",
}

const descriptionSentences = 3

// Decision is the outcome of analyzing one model reply.
type Decision struct {
	ShouldGenerateDiagram        bool     `json:"shouldGenerateDiagram"`
	ShouldGenerateCloudFormation bool     `json:"shouldGenerateCloudFormation"`
	Services                     []string `json:"services"`
	Description                  string   `json:"description"`
}

// Any reports whether at least one generation was requested.
func (d Decision) Any() bool {
	return d.ShouldGenerateDiagram || d.ShouldGenerateCloudFormation
}

// Analyze checks reply against both trigger lists independently.
// Services and Description are filled only when a generation fires.
func Analyze(text string) Decision {
	lower := strings.ToLower(text)
	d := Decision{
		ShouldGenerateDiagram:        containsAny(lower, diagramTriggers),
		ShouldGenerateCloudFormation: containsAny(lower, cloudFormationTriggers),
		Services:                     []string{},
	}
	if d.Any() {
		d.Services = ExtractServices(text)
		d.Description = Describe(text)
	}
	return d
}

// ExtractServices returns the known AWS services mentioned in text.
func ExtractServices(text string) []string {
	lower := strings.ToLower(text)
	seen := make(map[string]bool)
	out := []string{}
	for _, svc := range knownServices {
		if seen[svc] {
			continue
		}
		if strings.Contains(lower, strings.ToLower(svc)) {
			seen[svc] = true
			out = append(out, svc)
		}
	}
	return out
}

// Describe returns the first three "."-separated segments of text.
func Describe(text string) string {
	parts := strings.Split(text, ".")
	if len(parts) > descriptionSentences {
		parts = parts[:descriptionSentences]
	}
	return strings.TrimSpace(strings.Join(parts, "."))
}

func containsAny(lower string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
