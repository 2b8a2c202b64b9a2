package validations

import (
	"context"
	"regexp"

	domainInstance "github.com/AzielCF/az-wap-sales/domains/instance"
	pkgError "github.com/AzielCF/az-wap-sales/pkg/error"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// instance ids end up in file names and valkey keys
var instanceIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func ValidateCreateInstance(ctx context.Context, request domainInstance.CreateInstanceRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.ID, validation.Required, validation.Length(1, 64), validation.Match(instanceIDPattern)),
		validation.Field(&request.Label, validation.Length(0, 120)),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateSendMessage(ctx context.Context, request domainInstance.SendMessageRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.To, validation.Required),
		validation.Field(&request.Text, validation.Required, validation.Length(1, 4096)),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}
