package parse

// Keyword tables mapping lowercase text markers to display labels. Keys are
// matched as whole words against lowercased title+content text.

var skillKeywords = map[string]string{
	"go":         "Go",
	"golang":     "Go",
	"python":     "Python",
	"rust":       "Rust",
	"java":       "Java",
	"typescript": "TypeScript",
	"javascript": "JavaScript",
	"react":      "React",
	"kubernetes": "Kubernetes",
	"k8s":        "Kubernetes",
	"docker":     "Docker",
	"terraform":  "Terraform",
	"postgres":   "PostgreSQL",
	"postgresql": "PostgreSQL",
	"redis":      "Redis",
	"kafka":      "Kafka",
	"aws":        "AWS",
	"gcp":        "GCP",
	"azure":      "Azure",
	"sql":        "SQL",
	"grpc":       "gRPC",
	"graphql":    "GraphQL",
}

var innovationKeywords = map[string]string{
	"llm":              "LLMs",
	"genai":            "Generative AI",
	"generative":       "Generative AI",
	"machine learning": "Machine Learning",
	"ml":               "Machine Learning",
	"blockchain":       "Blockchain",
	"web3":             "Web3",
	"quantum":          "Quantum",
	"robotics":         "Robotics",
	"computer vision":  "Computer Vision",
	"nlp":              "NLP",
	"edge":             "Edge Computing",
}

var rareKeywords = map[string]string{
	"submarine":    "Underwater",
	"antarctic":    "Polar",
	"arctic":       "Polar",
	"volcano":      "Geology",
	"falconer":     "Animal Handling",
	"beekeeper":    "Animal Handling",
	"astronaut":    "Space",
	"spacecraft":   "Space",
	"lighthouse":   "Remote Outpost",
	"oil rig":      "Offshore",
	"wind turbine": "Offshore",
}
