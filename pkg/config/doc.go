// Package config loads the tap's configuration file.
//
// The file is JSON. Comments and trailing commas are accepted, and
// ${VAR_NAME} references are replaced with the value of the environment
// variable before parsing:
//
//	{
//	  // credentials come from the environment
//	  "accountSid": "${TWILIO_ACCOUNT_SID}",
//	  "authToken": "${TWILIO_AUTH_TOKEN}",
//	  "pageSize": 100,
//	  "streams": [
//	    {"stream": "IncomingPhoneNumbers", "resource": "incoming_phone_numbers"},
//	    {"stream": "MessageServices", "resource": "messaging_services"},
//	  ],
//	}
//
// The variables TAP_TWILIO_ACCOUNT_SID, TAP_TWILIO_AUTH_TOKEN and
// TAP_TWILIO_PAGE_SIZE override the corresponding file values.
//
// # Usage
//
//	cfg, err := config.Load("config.json")
//	if err != nil {
//		return err
//	}
//	if err := cfg.Validate(); err != nil {
//		return err
//	}
//
// Load only reports unreadable or unparsable files; missing credentials
// are reported by Validate so callers can order the two checks.
package config
