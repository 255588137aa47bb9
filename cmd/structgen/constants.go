package structgen

const (
	rootCommandUse   = "structgen"
	rootCommandShort = "Generate schema-validated JSON objects with an LLM"

	runCommandUse      = "run"
	runCommandShort    = "Generate one object for a schema and print the pipeline result"
	batchCommandUse    = "batch"
	batchCommandShort  = "Generate one object per prompt line, concurrently"
	listCommandUse     = "list"
	listCommandShort   = "List configured schemas"
	schemaCommandUse   = "schema"
	schemaCommandShort = "Inspect schemas and check candidate objects offline"
	checkCommandUse    = "check FILE"
	checkCommandShort  = "Validate a JSON candidate file against a schema"
	showCommandUse     = "show NAME|FILE"
	showCommandShort   = "Print a schema's field guidance and JSON Schema"

	configFlagName        = "config"
	configFlagUsage       = "Path to config.yaml (defaults to ./config.yaml, then ~/.structgen/config.yaml)"
	schemaFlagName        = "schema"
	schemaFlagUsage       = "Schema name from config.yaml or path to a schema file"
	promptFlagName        = "prompt"
	promptFlagUsage       = "Prompt text"
	promptFileFlagName    = "prompt-file"
	promptFileFlagUsage   = "Read the prompt from a file (- for stdin)"
	promptsFileFlagName   = "prompts-file"
	promptsFileFlagUsage  = "File with one prompt per line (- for stdin)"
	attemptsFlagName      = "attempts"
	attemptsFlagUsage     = "Maximum generation attempts (0 = use defaults)"
	repairFlagName        = "repair"
	repairFlagUsage       = "Run one repair pass when all attempts fail"
	timeoutFlagName       = "timeout"
	timeoutFlagUsage      = "Per-call timeout (e.g., 45s; 0 = use defaults)"
	modelFlagName         = "model"
	modelFlagUsage        = "Model name from models[] (defaults to the default model)"
	concurrencyFlagName   = "concurrency"
	concurrencyFlagUsage  = "Maximum concurrent pipelines (0 = use defaults)"
	metricsFileFlagName   = "metrics-file"
	metricsFileFlagUsage  = "Write prometheus metrics to this file when done"
	noCacheFlagName       = "no-cache"
	noCacheFlagUsage      = "Bypass the response cache even when enabled in config"
	environmentPrefix     = "STRUCTGEN"
	standardInputArgument = "-"
	dashPlaceholder       = "-"

	configurationLoaderInitializationErrorFormat = "initialize configuration loader: %w"
	configurationSourceResolutionErrorFormat     = "resolve configuration source: %w"
	rootConfigurationLoadErrorFormat             = "load root configuration %s: %w"
	schemaRegistryErrorFormat                    = "load configured schemas: %w"
	unknownSchemaErrorFormat                     = "unknown schema %q: not configured and not a readable file"
	loadSchemaFileErrorFormat                    = "load schema file %s: %w"
	unknownModelErrorFormat                      = "model %q not found in models[]"
	missingAPIKeyErrorFormat                     = "missing API key: set %s"
	readPromptErrorFormat                        = "read prompt: %w"
	readPromptsErrorFormat                       = "read prompts: %w"
	bindFlagErrorFormat                          = "bind flag %s: %w"
	writeOutputErrorFormat                       = "write output: %w"
	encodeResultErrorFormat                      = "encode result: %w"
	readCandidateErrorFormat                     = "read candidate %s: %w"
	buildRequestErrorFormat                      = "build request: %w"
	buildLoggerErrorFormat                       = "build logger: %w"
	generationFailedErrorFormat                  = "generation failed after %d attempts"
	batchFailedErrorFormat                       = "%d of %d prompts failed"
	candidateInvalidErrorMessage                 = "candidate does not satisfy the schema"
	missingPromptErrorMessage                    = "a prompt is required: use --prompt or --prompt-file"
	conflictingPromptErrorMessage                = "--prompt and --prompt-file are mutually exclusive"
	missingPromptsErrorMessage                   = "no prompts found"
	missingSchemaErrorMessage                    = "--schema is required"
)
