package monday

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
)

// AddFileToColumn uploads a local file to a file column through the dedicated
// multipart endpoint. The file is streamed, not buffered in memory.
func (c *Client) AddFileToColumn(ctx context.Context, token string, itemID int64, columnID, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open upload file: %w", err)
	}
	defer file.Close()

	mutation := fmt.Sprintf(
		`mutation ($file: File!) { add_file_to_column (item_id: %d, column_id: %q, file: $file) { id } }`,
		itemID, columnID,
	)

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		err := writeUploadBody(writer, mutation, filepath.Base(filePath), file)
		if closeErr := writer.Close(); err == nil {
			err = closeErr
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.fileAPIURL, pr)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute upload request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read upload response: %w", err)
	}

	if err := classifyHTTPStatus(resp.StatusCode); err != nil {
		return err
	}
	return parseUploadResponse(raw)
}

func writeUploadBody(writer *multipart.Writer, mutation, fileName string, file io.Reader) error {
	if err := writer.WriteField("query", mutation); err != nil {
		return fmt.Errorf("write query field: %w", err)
	}
	if err := writer.WriteField("map", `{"file":"variables.file"}`); err != nil {
		return fmt.Errorf("write map field: %w", err)
	}

	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("stream file part: %w", err)
	}
	return nil
}

func parseUploadResponse(raw []byte) error {
	var parsed graphQLResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("decode upload response: %w", err)
	}
	return classifyAPIError(parsed)
}
