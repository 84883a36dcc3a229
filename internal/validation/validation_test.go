package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type register struct {
	Login    string `json:"login" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Confirm  string `json:"confirmPassword" validate:"eqfield=Password"`
	Langue   string `json:"langue" validate:"langue"`
}

type priceReq struct {
	Type   string  `json:"type" validate:"pricetype"`
	Amount float64 `json:"amount" validate:"gt=0"`
}

type roles struct {
	Roles  []string   `json:"roles" validate:"required,min=1,dive,role"`
	Prices []priceReq `json:"prices" validate:"dive"`
}

func TestValidate_Register(t *testing.T) {
	v := New()
	ok := register{Login: "ann", Email: "ann@example.com", Password: "longenough", Confirm: "longenough", Langue: "nl"}
	require.NoError(t, v.Validate(ok))

	bad := register{Login: "an", Email: "nope", Password: "short", Confirm: "other", Langue: "de"}
	fields := Fields(v.Validate(bad))
	assert.Equal(t, "min=3", fields["login"])
	assert.Equal(t, "email", fields["email"])
	assert.Equal(t, "min=8", fields["password"])
	assert.Equal(t, "eqfield=Password", fields["confirmPassword"])
	assert.Equal(t, "langue", fields["langue"])
}

func TestValidate_CustomTags(t *testing.T) {
	v := New()
	require.NoError(t, v.Validate(roles{Roles: []string{"ADMIN", "PRESS"}, Prices: []priceReq{{Type: "VIP", Amount: 10}}}))

	fields := Fields(v.Validate(roles{Roles: []string{"ROOT"}, Prices: []priceReq{{Type: "GOLD", Amount: 0}}}))
	assert.Equal(t, "role", fields["roles[0]"])
	assert.Equal(t, "pricetype", fields["prices[0].type"])
	assert.Equal(t, "gt=0", fields["prices[0].amount"])
}

func TestFields_NonValidationError(t *testing.T) {
	assert.Nil(t, Fields(assert.AnError))
}
