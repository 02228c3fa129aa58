package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/text/language"
)

// AutoLanguage lets the networked backend detect the language.
const AutoLanguage = "auto"

// FieldError describes one invalid setting.
type FieldError struct {
	Field   string
	Value   any
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("config %s=%v: %s", e.Field, e.Value, e.Message)
}

// Normalize trims list entries and makes the server URL end in a slash.
func (c *Config) Normalize() {
	c.General.CustomDictionary = trimAll(c.General.CustomDictionary)
	c.Online.PreferredVariants = trimAll(c.Online.PreferredVariants)
	c.Offline.Dictionaries = trimAll(c.Offline.Dictionaries)
	c.Scripts.Filters = trimAll(c.Scripts.Filters)

	excluded := trimAll(c.Scheduler.ExcludedElements)
	for i, e := range excluded {
		excluded[i] = strings.ToLower(e)
	}
	c.Scheduler.ExcludedElements = excluded

	if c.Online.Server != "" && !strings.HasSuffix(c.Online.Server, "/") {
		c.Online.Server += "/"
	}
	c.Offline.DownloadURL = strings.TrimRight(c.Offline.DownloadURL, "/")
	c.General.DefaultLanguage = strings.TrimSpace(c.General.DefaultLanguage)
	if c.General.DefaultLanguage == "" {
		c.General.DefaultLanguage = AutoLanguage
	}
}

// Validate reports every invalid setting, joined into one error.
func (c *Config) Validate() error {
	var errs []error
	add := func(field string, value any, msg string) {
		errs = append(errs, &FieldError{Field: field, Value: value, Message: msg})
	}

	if c.General.DefaultLanguage != AutoLanguage {
		if err := ValidateTag(c.General.DefaultLanguage); err != nil {
			add("general.default_language", c.General.DefaultLanguage, err.Error())
		}
	}
	if c.Online.MotherTongue != "" {
		if err := ValidateTag(c.Online.MotherTongue); err != nil {
			add("online.mother_tongue", c.Online.MotherTongue, err.Error())
		}
	}
	for _, v := range c.Online.PreferredVariants {
		if err := ValidateTag(v); err != nil {
			add("online.preferred_variants", v, err.Error())
		}
	}
	for _, d := range c.Offline.Dictionaries {
		if err := ValidateTag(d); err != nil {
			add("offline.dictionaries", d, err.Error())
		}
	}

	if u, err := url.Parse(c.Online.Server); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("online.server", c.Online.Server, "must be an http or https URL")
	}
	if c.Online.RequestsPerMinute < 0 {
		add("online.requests_per_minute", c.Online.RequestsPerMinute, "must not be negative")
	}
	if c.Online.Timeout.Duration < 0 {
		add("online.timeout", c.Online.Timeout, "must not be negative")
	}
	if c.Offline.MaxSuggestions < 0 {
		add("offline.max_suggestions", c.Offline.MaxSuggestions, "must not be negative")
	}
	if c.Offline.MaxErrors < 0 {
		add("offline.max_errors", c.Offline.MaxErrors, "must not be negative")
	}
	if c.Scheduler.OnlineConcurrency < 0 {
		add("scheduler.online_concurrency", c.Scheduler.OnlineConcurrency, "must not be negative")
	}
	if c.Scheduler.OfflineConcurrency < 0 {
		add("scheduler.offline_concurrency", c.Scheduler.OfflineConcurrency, "must not be negative")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("logging.level", c.Logging.Level, "must be debug, info, warn or error")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		add("logging.format", c.Logging.Format, "must be text or json")
	}

	return errors.Join(errs...)
}

// ValidateTag checks that tag is a well-formed BCP 47 language tag.
func ValidateTag(tag string) error {
	if tag == "" {
		return errors.New("empty language tag")
	}
	if _, err := language.Parse(tag); err != nil {
		return fmt.Errorf("invalid language tag %q: %w", tag, err)
	}
	return nil
}

func trimAll(in []string) []string {
	out := in[:0:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
