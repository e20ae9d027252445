package config

// modelConfigSchema constrains every configuration source before it is
// decoded. Definitions are closed, so misspelled fields are rejected.
const modelConfigSchema = `
#ModelConfig: {
	model?:      string
	start_time?: number
	end_time?:   number
	time_step?:  number & >0
	time_units?: string
	attributes?: [string]: string
}
`
