package email

import (
	"context"
	"fmt"
	"net/smtp"

	"go.uber.org/zap"
)

type SMTPNotifier struct {
	host   string
	port   int
	from   string
	logger *zap.Logger
}

func NewSMTPNotifier(host string, port int, from string, logger *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{host: host, port: port, from: from, logger: logger}
}

func (n *SMTPNotifier) NotifyFailure(_ context.Context, userEmail, analysisID, filename, errorMsg string) error {
	addr := fmt.Sprintf("%s:%d", n.host, n.port)
	msg := buildFailureMessage(n.from, userEmail, analysisID, filename, errorMsg)

	err := smtp.SendMail(addr, nil, n.from, []string{userEmail}, msg)
	if err != nil {
		n.logger.Error("failed to send failure notification email",
			zap.String("to", userEmail),
			zap.String("analysis_id", analysisID),
			zap.Error(err),
		)
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("failure notification email sent",
		zap.String("to", userEmail),
		zap.String("analysis_id", analysisID),
	)
	return nil
}

func buildFailureMessage(from, to, analysisID, filename, errorMsg string) []byte {
	subject := fmt.Sprintf("FIAP X - Media Analysis Failed [Analysis %s]", analysisID)
	body := fmt.Sprintf(
		"Hello,\r\n\r\n"+
			"We could not analyze the file you uploaded.\r\n\r\n"+
			"Analysis ID: %s\r\n"+
			"File: %s\r\n"+
			"Error: %s\r\n\r\n"+
			"Please check that the file is a readable image or video and upload it again.\r\n\r\n"+
			"-- FIAP X Analysis Service",
		analysisID, filename, errorMsg,
	)
	return []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", from, to, subject, body))
}
