package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

// bucketNameRegex follows the S3 naming rules: 3-63 chars of lowercase
// letters, digits, dots and hyphens, starting and ending alphanumeric
var bucketNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidBucketName reports whether name is a usable S3 bucket name
func ValidBucketName(name string) bool {
	if !bucketNameRegex.MatchString(name) {
		return false
	}
	return !strings.Contains(name, "..")
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("s3bucket", func(fl validator.FieldLevel) bool {
		return ValidBucketName(fl.Field().String())
	})
	_ = v.RegisterValidation("cronexpr", func(fl validator.FieldLevel) bool {
		_, err := cronParser.Parse(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks the configuration. Any error here is fatal at startup.
func (c *Config) Validate() error {
	err := newValidator().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required", "required_if":
		return field + " is required"
	case "s3bucket":
		return fmt.Sprintf("%s %q is not a valid S3 bucket name", field, fe.Value())
	case "cronexpr":
		return fmt.Sprintf("%s %q is not a valid cron expression", field, fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "hostname_port":
		return fmt.Sprintf("%s %q must be host:port", field, fe.Value())
	case "url":
		return fmt.Sprintf("%s %q is not a valid URL", field, fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
