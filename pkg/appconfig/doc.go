// Package appconfig supplies the submission parameters the analytics
// pipeline reads at the start of every attempt.
//
// StaticProvider serves a fixed configuration, typically built from
// environment variables. FileProvider reads a YAML file and, once Watch is
// called, reloads it on change:
//
//	submission_probability: 0.5
//	etag: "2026-03-10"
//	hours_since_test_registration_to_submit_test_result_metadata: 165
//	hours_since_test_result_to_submit_key_submission_metadata: 165
//
// Files without an etag get one derived from their content, so a changed
// file always produces a changed client fingerprint.
package appconfig
