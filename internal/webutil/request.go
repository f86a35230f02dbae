// internal/webutil/request.go
package webutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go_course_platform/internal/model"
)

// DecodeJSONBody はリクエストボディを dst にデコードします。
// 未知のフィールドと、JSON値の後ろに続く余分なデータは受け付けない。
// 失敗はすべて model.ErrInvalidInput をラップして返す (警告ログは呼び出し元のハンドラが出す)。
func DecodeJSONBody(r *http.Request, dst interface{}) error {
	if r.Body == nil || r.Body == http.NoBody {
		return fmt.Errorf("request body is empty: %w", model.ErrInvalidInput)
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %v: %w", err, model.ErrInvalidInput)
	}

	// 2つ目のJSON値が続いていたら不正なリクエストとみなす
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("unexpected data after JSON body: %w", model.ErrInvalidInput)
	}

	return nil
}
