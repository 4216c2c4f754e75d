package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mementolink/mementolink-backend/internal/http/response"
	"github.com/mementolink/mementolink-backend/internal/platform/ctxutil"
	"github.com/mementolink/mementolink-backend/internal/services"
)

type StaffHandler struct {
	intake services.ClaimIntakeService
}

func NewStaffHandler(intake services.ClaimIntakeService) *StaffHandler {
	return &StaffHandler{intake: intake}
}

// ListClaims returns recent claim requests. Tenant scope comes from the
// staff middleware; no scope means all tenants.
func (sh *StaffHandler) ListClaims(c *gin.Context) {
	var staffTenant *string
	if rd := ctxutil.GetRequestData(c.Request.Context()); rd != nil {
		staffTenant = rd.StaffTenant
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	records, err := sh.intake.ListForStaff(c.Request.Context(), staffTenant, limit)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"claims": records,
		"count":  len(records),
	})
}
