package intentfile

// builtinIntentSchema is unified with every loaded file before decoding.
// The resolver re-validates the decoded intent; the schema exists to reject
// misspelled fields and type errors with file positions.
const builtinIntentSchema = `
#Deploy: {
	// app_name seeds resource names. Lowercase DNS-label style.
	app_name?: string & =~"^[a-z0-9]([a-z0-9-]*[a-z0-9])?$"

	enable_cloudfront?: bool
	enable_waf?:        bool
	use_iam_auth?:      bool

	allowed_ip_cidrs?: [...string]
	github_ip_cidrs?: [...string]

	retention_days?:            int & >0
	untagged_image_keep_count?: int & >0

	image_tag?: string & =~"^([0-9a-f]{1,40}|latest)$"

	memory_mb?:       int & >=128 & <=10240
	timeout_seconds?: int & >=1 & <=900
	port?:            int & >=1 & <=65535

	environment_variables?: [string]: string

	github_repository?: string & =~"^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$"
	oidc_provider_ref?: string

	env_script?: string
}

deploy: #Deploy
`
