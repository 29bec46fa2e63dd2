package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/webapi/proxyutil"
)

// codeErr carries an errcode value into the proxyutil envelope.
type codeErr struct {
	code uint32
	msg  string
}

func (e codeErr) Error() string {
	return e.msg
}

func (e codeErr) Code() uint32 {
	return e.code
}

func Success(c *gin.Context, data interface{}) {
	proxyutil.SuccessJson(c, data)
}

// Error answers with HTTP 200; clients branch on the code in the envelope.
func Error(c *gin.Context, code int, message string) {
	proxyutil.FailJson(c, http.StatusOK, codeErr{code: uint32(code), msg: message})
}
