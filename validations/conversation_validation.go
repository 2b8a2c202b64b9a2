package validations

import (
	"context"

	domainConversation "github.com/AzielCF/az-wap-sales/domains/conversation"
	pkgError "github.com/AzielCF/az-wap-sales/pkg/error"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func statusValues() []interface{} {
	out := make([]interface{}, 0, len(domainConversation.AllStatuses))
	for _, s := range domainConversation.AllStatuses {
		out = append(out, s)
	}
	return out
}

func ValidateSetStatus(ctx context.Context, request domainConversation.SetStatusRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Status, validation.Required, validation.In(statusValues()...)),
		validation.Field(&request.OperatorID, validation.Length(0, 128)),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}
